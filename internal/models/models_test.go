package models

import "testing"

func TestClassifyPlaylistID(t *testing.T) {
	cases := []struct {
		id   string
		want PlaylistKind
	}{
		{"collection:favorites", PlaylistCollection},
		{"local-abc123", PlaylistLocal},
		{"mixed-xyz", PlaylistMixed},
		{"37i9dQZF1", PlaylistServiceNative},
	}
	for _, tc := range cases {
		if got := ClassifyPlaylistID(tc.id); got != tc.want {
			t.Errorf("ClassifyPlaylistID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestPlaylistReadOnly(t *testing.T) {
	p := Playlist{ID: "collection:liked"}
	if !p.ReadOnly() {
		t.Error("expected collection: playlist to be read-only")
	}
	p2 := Playlist{ID: "local-1"}
	if p2.ReadOnly() {
		t.Error("expected local playlist to be mutable")
	}
}

func TestCoverArtVariants(t *testing.T) {
	if NoCoverArt().Kind != CoverArtNone {
		t.Error("expected none kind")
	}
	if got := ServiceCoverArt(ServiceTidal, ""); got.Kind != CoverArtNone {
		t.Error("expected empty id to collapse to none")
	}
	sc := ServiceCoverArt(ServiceTidal, "abc")
	if sc.Kind != CoverArtServiceID || sc.ID != "abc" || sc.Service != ServiceTidal {
		t.Errorf("unexpected service cover art: %+v", sc)
	}
	uc := URLCoverArt("https://example.com/a.jpg")
	if uc.Kind != CoverArtURL || uc.URL == "" {
		t.Errorf("unexpected url cover art: %+v", uc)
	}
}

func TestParseDownloadStatus(t *testing.T) {
	if _, err := ParseDownloadStatus("bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
	got, err := ParseDownloadStatus("completed")
	if err != nil || got != StatusCompleted {
		t.Errorf("ParseDownloadStatus(completed) = %v, %v", got, err)
	}
}

func TestPersistedQueueRoundTrip(t *testing.T) {
	tracks := []Track{
		{ID: "1", Title: "A", Cover: ServiceCoverArt(ServiceTidal, "cov1")},
		{ID: "2", Title: "B"},
	}
	pos := 1
	q := NewPersistedQueue(tracks, &pos, nil)
	if !q.Valid() {
		t.Fatal("expected valid queue")
	}
	if len(q.Tracks) != 2 || q.Tracks[0].CoverID != "cov1" {
		t.Errorf("unexpected persisted tracks: %+v", q.Tracks)
	}
	back := q.Tracks[0].ToTrack(ServiceTidal)
	if back.ID != "1" || back.Cover.Kind != CoverArtServiceID {
		t.Errorf("unexpected round-tripped track: %+v", back)
	}
}

func TestPersistedQueueInvalidPosition(t *testing.T) {
	tracks := []Track{{ID: "1"}}
	pos := 5
	q := NewPersistedQueue(tracks, &pos, nil)
	if q.Valid() {
		t.Error("expected position >= len(tracks) to be invalid")
	}
}

func TestHistoryEntryToTrack(t *testing.T) {
	h := HistoryEntry{TrackID: "t1", Title: "Song", Artist: "Artist", Service: ServiceYouTube, CoverID: "cov"}
	tr := h.ToTrack()
	if tr.ID != "t1" || tr.Service != ServiceYouTube || tr.Cover.Kind != CoverArtServiceID {
		t.Errorf("unexpected track from history entry: %+v", tr)
	}
}
