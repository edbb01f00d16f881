package instance

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kindling-sh/marathon/internal/marathonerr"
	"github.com/kindling-sh/marathon/internal/pathid"
)

// Prefix distinguishes instances launched by this process (marathon-) from
// ones reconstructed generically (instance-)
type Prefix string

const (
	PrefixInstance Prefix = "instance-"
	PrefixMarathon Prefix = "marathon-"
)

// idPattern is the exact regex the parser accepts.
var idPattern = regexp.MustCompile(`^(.+)\.(instance-|marathon-)([^.]+)$`)

// Id is the runtime identifier of an instance: the run-spec it belongs to,
// a launch-origin prefix, and an RFC-4122 v1 time-based UUID.
type Id struct {
	RunSpecId pathid.PathId
	Prefix    Prefix
	UUID      uuid.UUID
}

// NewId mints a fresh, time-ordered instance id for runSpecId using the
// process-wide node id baked into uuid.NewUUID (google/uuid's v1
// generator), giving the stable-node-id guarantee calls for.
func NewId(runSpecId pathid.PathId, prefix Prefix) (Id, error) {
	u, err := uuid.NewUUID()
	if err != nil {
		return Id{}, marathonerr.Wrap(marathonerr.ValidationFailure, "failed to mint instance uuid", err)
	}
	return Id{RunSpecId: runSpecId, Prefix: prefix, UUID: u}, nil
}

// String renders the canonical "<safeRunSpecId>.<prefix><uuid>" form.
func (id Id) String() string {
	return id.RunSpecId.Safe() + "." + string(id.Prefix) + id.UUID.String()
}

// ParseId parses the canonical string form, matching idPattern and
// reconstructing the original run-spec path from its safe encoding. This
// must invert String exactly.
func ParseId(raw string) (Id, error) {
	m := idPattern.FindStringSubmatch(raw)
	if m == nil {
		return Id{}, marathonerr.Wrap(marathonerr.MatchError, "malformed instance id: "+raw, nil)
	}
	u, err := uuid.Parse(m[3])
	if err != nil {
		return Id{}, marathonerr.Wrap(marathonerr.MatchError, "malformed instance uuid in: "+raw, err)
	}
	runSpecId, err := unsafePathId(m[1])
	if err != nil {
		return Id{}, marathonerr.Wrap(marathonerr.MatchError, "malformed run-spec id in: "+raw, err)
	}
	return Id{RunSpecId: runSpecId, Prefix: Prefix(m[2]), UUID: u}, nil
}

// unsafePathId inverts PathId.Safe(): segments were joined with "."; since
// segment contents may never contain "." (pathid.Parse rejects it), this
// split is exact.
func unsafePathId(safe string) (pathid.PathId, error) {
	if safe == "" {
		return pathid.Root(), nil
	}
	return pathid.Parse("/" + strings.ReplaceAll(safe, ".", "/"))
}
