package monitor

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/qsrv/sourceq/internal/models"
)

// snapshotHash digests the fields of a snapshot that describe server state.
// Query time and ping are excluded so that latency jitter alone does not
// count as a change.
func snapshotHash(s models.Snapshot) uint64 {
	d := xxhash.New()

	for _, field := range []string{
		s.Address, s.ServerName, s.MapName, s.GameName,
		s.GameVersion, s.ServerOS, s.CountryCode,
	} {
		_, _ = d.WriteString(field)
		_, _ = d.Write([]byte{0})
	}

	var counts [8]byte
	binary.LittleEndian.PutUint32(counts[:4], uint32(s.Port))
	counts[4] = s.Players
	counts[5] = s.MaxPlayers
	counts[6] = s.Bots
	_, _ = d.Write(counts[:])

	return d.Sum64()
}
