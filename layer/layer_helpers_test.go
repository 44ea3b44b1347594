package layer

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
	"github.com/Canadian-Geospatial-Platform/geoview-sub011/fetch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

// fileServer serves fixed bodies by path and counts hits.
type fileServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string][]byte
	hits   map[string]int
}

func newFileServer(t *testing.T, bodies map[string][]byte) *fileServer {
	t.Helper()
	fs := &fileServer{bodies: bodies, hits: map[string]int{}}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.hits[r.URL.Path]++
		fs.mu.Unlock()
		body, ok := fs.bodies[r.URL.Path]
		if !ok {
			http.Error(w, "missing", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fileServer) hitCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[path]
}

// statusLog records listener events per layer path.
type statusLog struct {
	mu     sync.Mutex
	events map[string][]geoview.LayerStatus
}

func newStatusLog() *statusLog {
	return &statusLog{events: map[string][]geoview.LayerStatus{}}
}

func (l *statusLog) listen(_ context.Context, change StatusChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[change.LayerPath] = append(l.events[change.LayerPath], change.To)
}

func (l *statusLog) of(path string) []geoview.LayerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]geoview.LayerStatus(nil), l.events[path]...)
}

func newTestOrchestrator(opts ...Option) *Orchestrator {
	base := []Option{
		WithLogger(discardLogger()),
		WithFetcher(fetch.New(fetch.WithLogger(discardLogger()))),
	}
	return New(append(base, opts...)...)
}

// buildGeoTIFF writes a minimal TIFF with a single IFD holding the geokey
// directory. Each key is {id, location, count, value}.
func buildGeoTIFF(order binary.ByteOrder, keys [][4]uint16) []byte {
	shorts := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		shorts = append(shorts, k[0], k[1], k[2], k[3])
	}
	const dirOffset = 8 + 2 + 12 + 4
	data := make([]byte, dirOffset+len(shorts)*2)
	if order == binary.LittleEndian {
		copy(data, "II")
	} else {
		copy(data, "MM")
	}
	order.PutUint16(data[2:], 42)
	order.PutUint32(data[4:], 8)
	order.PutUint16(data[8:], 1)
	order.PutUint16(data[10:], 34735)
	order.PutUint16(data[12:], 3)
	order.PutUint32(data[14:], uint32(len(shorts)))
	order.PutUint32(data[18:], dirOffset)
	order.PutUint32(data[22:], 0)
	for i, s := range shorts {
		order.PutUint16(data[dirOffset+i*2:], s)
	}
	return data
}
