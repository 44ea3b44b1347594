package layer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	geoview "github.com/Canadian-Geospatial-Platform/geoview-sub011"
)

func TestFindMetadataEntryRecursesThroughNestedGroups(t *testing.T) {
	deep := &MetadataEntry{ID: "leaf", Name: "deep"}
	entries := []*MetadataEntry{
		{ID: "a", Children: []*MetadataEntry{
			{ID: "b", Children: []*MetadataEntry{
				{ID: "c", Children: []*MetadataEntry{deep}},
			}},
		}},
		{ID: "leaf", Name: "shallow sibling after"},
	}
	if got := FindMetadataEntry(entries, "leaf"); got != deep {
		t.Fatalf("expected first depth-first match, got %+v", got)
	}
	if got := FindMetadataEntry(entries, "absent"); got != nil {
		t.Fatalf("expected nil for absent id, got %+v", got)
	}
	if got := FindMetadataEntry(nil, "leaf"); got != nil {
		t.Fatalf("expected nil for empty metadata")
	}
}

func TestMergeKeepsNarrowerScaleRange(t *testing.T) {
	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:   "tiff",
		GeoviewLayerType: geoview.LayerTypeGeoTIFF,
		ListOfLayerEntryConfig: []*geoview.LayerEntryConfig{{
			LayerID:         "dtm",
			InitialSettings: &geoview.InitialSettings{MinScale: geoview.Float(1000), MaxScale: geoview.Float(5000)},
		}},
	}
	if err := geoview.CheckTree(layer); err != nil {
		t.Fatalf("check tree: %v", err)
	}
	entry := layer.ListOfLayerEntryConfig[0]
	md := &Metadata{Projection: 3978}
	meta := &MetadataEntry{ID: "dtm", Name: "Terrain", MinScale: geoview.Float(500), MaxScale: geoview.Float(2000)}

	mergeEntryMetadata(entry, md, meta)

	if got := *entry.InitialSettings.MinScale; got != 1000 {
		t.Fatalf("expected minScale 1000, got %v", got)
	}
	if got := *entry.InitialSettings.MaxScale; got != 2000 {
		t.Fatalf("expected maxScale 2000, got %v", got)
	}
	if entry.LayerName != "Terrain" {
		t.Fatalf("expected metadata name to fill the empty name, got %q", entry.LayerName)
	}
	if entry.Source == nil || entry.Source.Projection != 3978 {
		t.Fatalf("expected metadata projection on source, got %+v", entry.Source)
	}
}

func TestGeoTIFFCollectionLoad(t *testing.T) {
	tiff := buildGeoTIFF(binary.LittleEndian, [][4]uint16{{3072, 0, 1, 3979}})
	srv := newFileServer(t, map[string][]byte{
		"/data/collection.json": readFixture(t, "raster_collection.json"),
		"/data/tiles/dtm.tif":   tiff,
	})
	statuses := newStatusLog()
	o := newTestOrchestrator(WithStatusListener(statuses.listen))

	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     "elevation",
		GeoviewLayerType:   geoview.LayerTypeGeoTIFF,
		MetadataAccessPath: srv.URL + "/data/collection.json",
		ListOfLayerEntryConfig: []*geoview.LayerEntryConfig{
			{
				LayerID: "rasters",
				ListOfLayerEntryConfig: []*geoview.LayerEntryConfig{
					{LayerID: "dtm", InitialSettings: &geoview.InitialSettings{MinScale: geoview.Float(1000)}},
					{LayerID: "nope"},
				},
			},
		},
	}

	res, err := o.Load(context.Background(), layer)
	if err != nil {
		t.Fatalf("expected load to succeed, got %v", err)
	}
	o.Wait()

	if res.Metadata == nil || res.Metadata.Title != "Elevation collection" {
		t.Fatalf("expected metadata on result, got %+v", res.Metadata)
	}
	if len(res.Renderers) != 1 {
		t.Fatalf("expected one renderer, got %d", len(res.Renderers))
	}
	r := res.Renderers[0]
	if r.LayerPath != "elevation/rasters/dtm" {
		t.Fatalf("expected layer path elevation/rasters/dtm, got %q", r.LayerPath)
	}
	if r.URL != srv.URL+"/data/tiles/dtm.tif" {
		t.Fatalf("expected asset href resolved against the document, got %q", r.URL)
	}
	if r.Format != "GeoTIFF" || r.Projection != 3978 {
		t.Fatalf("expected GeoTIFF in 3978, got %q %d", r.Format, r.Projection)
	}
	if r.MinScale == nil || *r.MinScale != 1000 {
		t.Fatalf("expected user minScale 1000 to beat metadata 500, got %v", r.MinScale)
	}
	if r.MaxScale == nil || *r.MaxScale != 2000 {
		t.Fatalf("expected metadata maxScale 2000, got %v", r.MaxScale)
	}
	if r.Name != "Digital terrain model" {
		t.Fatalf("expected metadata name, got %q", r.Name)
	}

	dtm := geoview.FindByID(layer.ListOfLayerEntryConfig, "dtm")
	if dtm.LayerStyle["colormap"] != "terrain" {
		t.Fatalf("expected metadata style merged, got %v", dtm.LayerStyle)
	}
	if dtm.Source.Extra["resampling"] != "bilinear" {
		t.Fatalf("expected service source options merged, got %v", dtm.Source.Extra)
	}

	want := []geoview.LayerStatus{
		geoview.StatusServiceMetadataFetching,
		geoview.StatusServiceMetadataFetched,
		geoview.StatusProcessing,
		geoview.StatusLoaded,
	}
	if got := statuses.of("elevation/rasters/dtm"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}

	nope := geoview.FindByID(layer.ListOfLayerEntryConfig, "nope")
	if nope.Status() != geoview.StatusError {
		t.Fatalf("expected missing id to end in ERROR, got %s", nope.Status())
	}
	if diags := nope.Diagnostics(); len(diags) != 1 || !strings.Contains(diags[0], ErrLayerIDNotFound.Error()) {
		t.Fatalf("expected layer id not found diagnostic, got %v", diags)
	}
	if !reflect.DeepEqual(res.Failed, []string{"elevation/rasters/nope"}) {
		t.Fatalf("expected failed path list, got %v", res.Failed)
	}

	if !o.Projections().Known(3979) {
		t.Fatalf("expected the detached probe to register EPSG:3979, got %v", o.Projections().Codes())
	}
}

func TestGeoTIFFRawFileSkipsMetadata(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{
		"/files/elevation.tif": buildGeoTIFF(binary.BigEndian, [][4]uint16{{2048, 0, 1, 4617}}),
	})
	statuses := newStatusLog()
	o := newTestOrchestrator(WithStatusListener(statuses.listen))

	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     "raw",
		GeoviewLayerType:   geoview.LayerTypeGeoTIFF,
		MetadataAccessPath: srv.URL + "/files/elevation.tif",
	}
	res, err := o.Load(context.Background(), layer)
	if err != nil {
		t.Fatalf("expected raw file to load, got %v", err)
	}
	o.Wait()

	if len(layer.ListOfLayerEntryConfig) != 1 {
		t.Fatalf("expected one synthesized entry, got %d", len(layer.ListOfLayerEntryConfig))
	}
	entry := layer.ListOfLayerEntryConfig[0]
	if entry.LayerID != "elevation" || entry.LayerName != "elevation.tif" {
		t.Fatalf("expected entry named after the file, got %q / %q", entry.LayerID, entry.LayerName)
	}
	if res.Metadata != nil {
		t.Fatalf("expected no metadata for a raw file")
	}
	want := []geoview.LayerStatus{geoview.StatusSkipped, geoview.StatusProcessing, geoview.StatusLoaded}
	if got := statuses.of("raw/elevation"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected transitions %v, got %v", want, got)
	}
	if len(res.Renderers) != 1 || res.Renderers[0].URL != srv.URL+"/files/elevation.tif" {
		t.Fatalf("expected renderer on the raw file, got %+v", res.Renderers)
	}
	// Only the detached probe reads the file.
	if hits := srv.hitCount("/files/elevation.tif"); hits != 1 {
		t.Fatalf("expected one probe request, got %d", hits)
	}
	if !o.Projections().Known(4617) {
		t.Fatalf("expected geographic code registered, got %v", o.Projections().Codes())
	}
}

func TestGeoTIFFMetadataFailureIsNotFatal(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{})
	o := newTestOrchestrator()

	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     "broken",
		GeoviewLayerType:   geoview.LayerTypeGeoTIFF,
		MetadataAccessPath: srv.URL + "/data/collection.json",
		ListOfLayerEntryConfig: []*geoview.LayerEntryConfig{
			{LayerID: "explicit", Source: &geoview.Source{DataAccessPath: srv.URL + "/data/explicit.tif"}},
			{LayerID: "implicit"},
		},
	}
	res, err := o.Load(context.Background(), layer)
	if err != nil {
		t.Fatalf("expected metadata failure to be absorbed, got %v", err)
	}
	o.Wait()

	explicit := layer.ListOfLayerEntryConfig[0]
	if explicit.Status() != geoview.StatusLoaded {
		t.Fatalf("expected leaf with its own file to load, got %s", explicit.Status())
	}
	diags := explicit.Diagnostics()
	if len(diags) == 0 || !strings.Contains(diags[0], ErrMetadataFetch.Error()) {
		t.Fatalf("expected metadata fetch diagnostic, got %v", diags)
	}
	implicit := layer.ListOfLayerEntryConfig[1]
	if implicit.Status() != geoview.StatusError {
		t.Fatalf("expected leaf without a raster file to fail, got %s", implicit.Status())
	}
	if len(res.Failed) != 1 || res.Failed[0] != "broken/implicit" {
		t.Fatalf("expected only the implicit leaf to fail, got %v", res.Failed)
	}
}

func TestGeoTIFFMetadataDocumentNeedsEntries(t *testing.T) {
	o := newTestOrchestrator()
	_, err := o.Load(context.Background(), &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     "doc",
		GeoviewLayerType:   geoview.LayerTypeGeoTIFF,
		MetadataAccessPath: "https://example.org/collection.meta",
	})
	if !errors.Is(err, geoview.ErrConfigShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
}

func TestGeoTIFFProjectionReadsOnlyTheHeader(t *testing.T) {
	tiff := buildGeoTIFF(binary.LittleEndian, [][4]uint16{{3072, 0, 1, 3979}})
	// Pixel data well past the header; the server ignores the Range header.
	body := append(tiff, make([]byte, 4*HeaderPrefixSize)...)

	var (
		mu     sync.Mutex
		ranges []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ranges = append(ranges, r.Header.Get("Range"))
		mu.Unlock()
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator()
	layer := &geoview.GeoviewLayerConfig{
		GeoviewLayerID:     "big",
		GeoviewLayerType:   geoview.LayerTypeGeoTIFF,
		MetadataAccessPath: srv.URL + "/files/mosaic.tif",
	}
	if _, err := o.Load(context.Background(), layer); err != nil {
		t.Fatalf("expected raw file to load, got %v", err)
	}
	o.Wait()

	mu.Lock()
	defer mu.Unlock()
	want := fmt.Sprintf("bytes=0-%d", HeaderPrefixSize-1)
	if len(ranges) != 1 || ranges[0] != want {
		t.Fatalf("expected one request with Range %q, got %v", want, ranges)
	}
	if !o.Projections().Known(3979) {
		t.Fatalf("expected projection found in the header prefix, got %v", o.Projections().Codes())
	}
}

func TestGeoTIFFProjectionBeyondPrefixIsSkipped(t *testing.T) {
	// Header pointing at an IFD past the bytes that are read.
	data := make([]byte, 8)
	copy(data, "II")
	binary.LittleEndian.PutUint16(data[2:], 42)
	binary.LittleEndian.PutUint32(data[4:], uint32(2*HeaderPrefixSize))
	if _, err := ProbeProjection(data); !errors.Is(err, ErrNotTIFF) {
		t.Fatalf("expected out of range IFD to fail cleanly, got %v", err)
	}
}
