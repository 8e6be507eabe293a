package models

import (
	"reflect"
	"testing"
)

func TestDualTogglesToTheOtherChannel(t *testing.T) {
	if got := Dual(ChannelMobile); !reflect.DeepEqual(got, ChannelSet{ChannelMobile, ChannelEmail}) {
		t.Fatalf("Dual(mobile) = %v", got)
	}
	if got := Dual(ChannelEmail); !reflect.DeepEqual(got, ChannelSet{ChannelEmail, ChannelMobile}) {
		t.Fatalf("Dual(email) = %v", got)
	}
}

func TestChannelsDropsInvalidAndDuplicates(t *testing.T) {
	got := Channels(ChannelEmail, Channel("fax"), ChannelEmail, ChannelMobile)
	if !reflect.DeepEqual(got, ChannelSet{ChannelEmail, ChannelMobile}) {
		t.Fatalf("Channels() = %v", got)
	}
}

func TestParseChannelIsCaseInsensitive(t *testing.T) {
	c, err := ParseChannel("Mobile")
	if err != nil || c != ChannelMobile {
		t.Fatalf("ParseChannel(Mobile) = %q, %v", c, err)
	}
	if _, err := ParseChannel("0771234567"); err == nil {
		t.Fatalf("phone number parsed as a channel")
	}
}

func TestWithPrimaryKeepsLegCount(t *testing.T) {
	cases := []struct {
		name    string
		set     ChannelSet
		primary Channel
		want    ChannelSet
	}{
		{name: "single replaced", set: ChannelSet{ChannelMobile}, primary: ChannelEmail, want: ChannelSet{ChannelEmail}},
		{name: "single unchanged", set: ChannelSet{ChannelMobile}, primary: ChannelMobile, want: ChannelSet{ChannelMobile}},
		{name: "dual reordered", set: ChannelSet{ChannelMobile, ChannelEmail}, primary: ChannelEmail, want: ChannelSet{ChannelEmail, ChannelMobile}},
		{name: "dual unchanged", set: ChannelSet{ChannelMobile, ChannelEmail}, primary: ChannelMobile, want: ChannelSet{ChannelMobile, ChannelEmail}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.set.WithPrimary(tc.primary); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("WithPrimary(%q) = %v, want %v", tc.primary, got, tc.want)
			}
		})
	}
}
