package models

import (
	"strings"

	"github.com/amirk1998/serendib-banking/pkg/errors"
)

// Channel names an OTP delivery medium.
type Channel string

const (
	ChannelMobile Channel = "mobile"
	ChannelEmail  Channel = "email"
)

// AllChannels lists every supported channel in default preference order
var AllChannels = ChannelSet{ChannelMobile, ChannelEmail}

// ParseChannel accepts a channel name in any case
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelMobile:
		return ChannelMobile, nil
	case ChannelEmail:
		return ChannelEmail, nil
	}
	return "", errors.ErrInvalidChannel
}

func (c Channel) Valid() bool {
	return c == ChannelMobile || c == ChannelEmail
}

func (c Channel) String() string { return string(c) }

// ChannelSet is an ordered set of channels; the first entry is the
// primary delivery leg.
type ChannelSet []Channel

// Channels builds a set from cs, dropping invalid and repeated entries
func Channels(cs ...Channel) ChannelSet {
	set := make(ChannelSet, 0, len(cs))
	for _, c := range cs {
		if c.Valid() && !set.Contains(c) {
			set = append(set, c)
		}
	}
	return set
}

// Dual delivers on primary and then on every other supported channel
func Dual(primary Channel) ChannelSet {
	return Channels(append(ChannelSet{primary}, AllChannels...)...)
}

func (s ChannelSet) Contains(c Channel) bool {
	for _, existing := range s {
		if existing == c {
			return true
		}
	}
	return false
}

// Primary returns the first channel, or false for an empty set
func (s ChannelSet) Primary() (Channel, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}

// WithPrimary makes p the primary leg while keeping the number of legs:
// a single-channel set becomes {p}, a dual set becomes p plus the other one.
func (s ChannelSet) WithPrimary(p Channel) ChannelSet {
	out := ChannelSet{p}
	for _, c := range s {
		if len(out) >= len(s) {
			break
		}
		if c != p {
			out = append(out, c)
		}
	}
	return out
}
