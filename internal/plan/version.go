package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// Receipt compatibility window: a receipt may be reverted by any installer
// sharing its major and minor version. Patch releases must stay
// receipt-compatible; anything wider refuses rather than guesses.

// VersionMismatchError reports a receipt written by an incompatible
// installer version.
type VersionMismatchError struct {
	Receipt string
	Binary  string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf(
		"receipt was written by nixup %s, which is incompatible with this binary (%s); use a matching nixup release to uninstall",
		e.Receipt, e.Binary,
	)
}

// CheckCompatible returns a VersionMismatchError unless receiptVersion falls
// inside the compatibility window of this binary's version.
func CheckCompatible(receiptVersion string) error {
	rMaj, rMin, err := parseMajorMinor(receiptVersion)
	if err != nil {
		return &VersionMismatchError{Receipt: receiptVersion, Binary: InstallerVersion}
	}
	bMaj, bMin, err := parseMajorMinor(InstallerVersion)
	if err != nil {
		return fmt.Errorf("parse installer version %q: %w", InstallerVersion, err)
	}
	if rMaj != bMaj || rMin != bMin {
		return &VersionMismatchError{Receipt: receiptVersion, Binary: InstallerVersion}
	}
	return nil
}

func parseMajorMinor(v string) (major, minor int, err error) {
	v = strings.TrimPrefix(v, "v")
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed version %q", v)
	}
	return major, minor, nil
}
