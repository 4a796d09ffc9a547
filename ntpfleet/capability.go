package ntpfleet

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// Extension is a protocol extension flag the daemon may support. The string
// value is the daemon's server-directive option for the extension.
type Extension string

const (
	// ExtXleave enables interleaved mode for cross-timestamping.
	ExtXleave Extension = "xleave"
	// ExtCopy lets a serving instance copy the client's timestamps.
	ExtCopy Extension = "copy"
	// ExtExtfield enables extended NTP fields.
	ExtExtfield Extension = "extfield F323"
)

// Version is the daemon's reported major.minor version.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// AtLeast returns true if v is not older than other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

// Capability is the probed daemon version and the extension flags it
// supports. Derived once at startup; immutable afterwards.
type Capability struct {
	Version    Version
	Extensions []Extension
}

// Strings returns the extension flags as plain strings, mostly for journaling.
func (c Capability) Strings() []string {
	s := make([]string, len(c.Extensions))
	for i, ext := range c.Extensions {
		s[i] = string(ext)
	}
	return s
}

var (
	// ErrDaemonNotFound is returned when the daemon executable cannot be
	// invoked at all.
	ErrDaemonNotFound = errors.New("time daemon executable not found")

	// ErrVersionUnparsable is returned when the daemon's version output does
	// not contain a recognizable major.minor token.
	ErrVersionUnparsable = errors.New("cannot parse daemon version")
)

// UnsupportedVersionError is returned for daemons older than the supported
// floor.
type UnsupportedVersionError struct {
	Version Version
}

func (err *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("daemon version %s is below the supported floor %s",
		err.Version, extensionFloors[len(extensionFloors)-1].version)
}

// extensionFloors maps version floors to extension sets, newest first. A
// probed version gets the set of the first floor it is not older than;
// unknown newer versions therefore land on the superset.
var extensionFloors = []struct {
	version    Version
	extensions []Extension
}{
	{Version{4, 2}, []Extension{ExtXleave, ExtCopy, ExtExtfield}},
	{Version{4, 1}, []Extension{ExtXleave, ExtCopy}},
	{Version{4, 0}, nil},
}

var versionRe = regexp.MustCompile(`version (\d+)\.(\d+)`)

// ProbeDaemon invokes the daemon's version query and maps the reported
// version to its capability set. Any failure here is fatal to the whole
// supervisor: nothing may be launched against a daemon of unknown vintage.
func ProbeDaemon(ctx context.Context, path string) (Capability, error) {
	out, err := exec.CommandContext(ctx, path, "-v").CombinedOutput()
	if err != nil && len(out) == 0 {
		return Capability{}, errors.Wrapf(ErrDaemonNotFound, "%s", err)
	}

	return parseCapability(string(out))
}

func parseCapability(versionOutput string) (Capability, error) {
	m := versionRe.FindStringSubmatch(versionOutput)
	if m == nil {
		return Capability{}, ErrVersionUnparsable
	}

	// The regexp guarantees digits.
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])

	v := Version{major, minor}

	for _, floor := range extensionFloors {
		if v.AtLeast(floor.version) {
			return Capability{Version: v, Extensions: floor.extensions}, nil
		}
	}

	return Capability{}, &UnsupportedVersionError{Version: v}
}
