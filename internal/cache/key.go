package cache

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var ErrInvalidKey = errors.New("cache: invalid key")

// Key identifies one cached payload. Bumping SchemaVersion whenever the
// payload shape changes orphans every entry written under the old version.
type Key struct {
	Namespace     string
	EntityID      string
	SchemaVersion int
}

func (k Key) Validate() error {
	switch {
	case k.Namespace == "":
		return fmt.Errorf("%w: empty namespace", ErrInvalidKey)
	case k.EntityID == "":
		return fmt.Errorf("%w: empty entity id", ErrInvalidKey)
	case k.SchemaVersion <= 0:
		return fmt.Errorf("%w: schema version must be positive", ErrInvalidKey)
	}
	return nil
}

// String renders the storage key. Each part is escaped before joining so an
// entity id containing ':' cannot collide with another key.
func (k Key) String() string {
	return url.QueryEscape(k.Namespace) + ":" +
		url.QueryEscape(k.EntityID) + ":v" +
		strconv.Itoa(k.SchemaVersion)
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || !strings.HasPrefix(parts[2], "v") {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}

	ns, err := url.QueryUnescape(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	id, err := url.QueryUnescape(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	version, err := strconv.Atoi(parts[2][1:])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	k := Key{Namespace: ns, EntityID: id, SchemaVersion: version}
	return k, k.Validate()
}
