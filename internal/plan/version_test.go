package plan

import (
	"errors"
	"testing"
)

func TestCheckCompatible(t *testing.T) {
	orig := InstallerVersion
	InstallerVersion = "0.4.2"
	defer func() { InstallerVersion = orig }()

	cases := []struct {
		receipt string
		ok      bool
	}{
		{"0.4.2", true},
		{"0.4.0", true},  // patch skew is fine
		{"0.4.9", true},
		{"0.3.9", false}, // minor skew refuses
		{"1.4.2", false}, // major skew refuses
		{"garbage", false},
		{"", false},
	}
	for _, c := range cases {
		err := CheckCompatible(c.receipt)
		if c.ok && err != nil {
			t.Errorf("CheckCompatible(%q) = %v, want nil", c.receipt, err)
		}
		if !c.ok {
			var vm *VersionMismatchError
			if !errors.As(err, &vm) {
				t.Errorf("CheckCompatible(%q) = %v, want VersionMismatchError", c.receipt, err)
			}
		}
	}
}
