package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OTPIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "Total number of one-time codes handed to a delivery channel.",
		},
		[]string{"channel"},
	)

	OTPValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_validations_total",
			Help: "Total number of one-time code checks by result.",
		},
		[]string{"result"},
	)

	OTPDeliveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_delivery_failures_total",
			Help: "Total number of failed code deliveries.",
		},
		[]string{"channel"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of credential checks.",
		},
		[]string{"result"},
	)

	AuthLockoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_lockouts_total",
			Help: "Total number of lockouts applied.",
		},
		[]string{"kind"},
	)

	ResetTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reset_tokens_total",
			Help: "Total number of password reset token operations.",
		},
		[]string{"flow", "result"},
	)
)

// MustRegister registers every collector on the default registry with a
// constant service label.
func MustRegister(serviceName string) {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, prometheus.DefaultRegisterer)
	reg.MustRegister(
		OTPIssuedTotal,
		OTPValidationsTotal,
		OTPDeliveryFailuresTotal,
		AuthLoginsTotal,
		AuthLockoutsTotal,
		ResetTokensTotal,
	)
}
