package glyphd

import (
	"fmt"
	"net/url"
	"strings"

	"pkt.systems/glyphd/internal/storage"
	"pkt.systems/glyphd/internal/storage/disk"
	"pkt.systems/glyphd/internal/storage/memory"
	"pkt.systems/pslog"
)

func openBackend(dsn string, logger pslog.Logger) (storage.Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultStore
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("glyphd: parse store URL: %w", err)
	}
	switch u.Scheme {
	case "memory", "mem", "":
		return memory.New(), nil
	case "disk":
		root := u.Path
		if u.Host != "" {
			// disk://relative/path puts the first segment in the host part.
			root = u.Host + root
		}
		return disk.New(disk.Config{Root: root, Logger: logger})
	default:
		return nil, fmt.Errorf("glyphd: unsupported store scheme %q", u.Scheme)
	}
}
