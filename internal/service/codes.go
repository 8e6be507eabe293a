package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirk1998/serendib-banking/internal/audit"
)

const codeSpace = 1_000_000

// sixDigitCode draws uniformly from 000000..999999
func sixDigitCode(rnd RandomSource) string {
	return fmt.Sprintf("%06d", rnd.IntN(codeSpace))
}

func recordAudit(ctx context.Context, al *audit.Logger, log *slog.Logger, event *audit.Event) {
	if al == nil {
		return
	}
	if err := al.Log(ctx, event); err != nil {
		log.Error("failed to record audit event", "action", event.Action, "error", err)
	}
}
