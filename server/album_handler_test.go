package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"resonate/model"

	"github.com/gorilla/mux"
)

type stubAlbumRepo struct {
	albums map[int64]*model.Album
}

func (r *stubAlbumRepo) CreateAlbum(_ context.Context, album *model.Album) error {
	r.albums[album.ID] = album
	return nil
}

func (r *stubAlbumRepo) GetAlbumByID(_ context.Context, id int64) (*model.Album, error) {
	return r.albums[id], nil
}

func (r *stubAlbumRepo) GetAlbumByIDAndUserID(_ context.Context, id, userID int64) (*model.Album, error) {
	if a := r.albums[id]; a != nil && a.UserID == userID {
		return a, nil
	}
	return nil, nil
}

func (r *stubAlbumRepo) GetAlbumsByUserID(_ context.Context, userID int64) ([]*model.Album, error) {
	var out []*model.Album
	for _, a := range r.albums {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *stubAlbumRepo) UpdateAlbum(_ context.Context, album *model.Album) error {
	r.albums[album.ID] = album
	return nil
}

func (r *stubAlbumRepo) SetAlbumArt(_ context.Context, id int64, artPath string) error {
	if a, ok := r.albums[id]; ok {
		a.AlbumArt = artPath
	}
	return nil
}

func (r *stubAlbumRepo) DeleteAlbum(_ context.Context, id int64) error {
	delete(r.albums, id)
	return nil
}

func (r *stubAlbumRepo) IDExists(_ context.Context, id int64) (bool, error) {
	_, ok := r.albums[id]
	return ok, nil
}

func TestGetAlbumEndpoint(t *testing.T) {
	albums := &stubAlbumRepo{albums: map[int64]*model.Album{
		10001: {ID: 10001, UserID: 123456, Title: "First Light", Artist: "Ada"},
	}}
	tracks := &stubTrackRepo{tracks: map[int64]*model.Track{
		1000001: {ID: 1000001, AlbumID: 10001, Title: "One", Artist: "Ada"},
		1000002: {ID: 1000002, AlbumID: 10001, Title: "Two", Artist: "Ada"},
	}}

	h := &APIHandler{albumRepo: albums, trackRepo: tracks}
	router := mux.NewRouter()
	router.HandleFunc("/xrpc/music/album/{albumId}", h.GetAlbumHandler).Methods(http.MethodGet)

	t.Run("album with its tracks", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/xrpc/music/album/10001", nil))
		if w.Code != 200 {
			t.Fatalf("status = %d, want 200", w.Code)
		}

		var resp model.AlbumWithTracks
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Album.ID != 10001 || resp.Album.Title != "First Light" {
			t.Errorf("album = %+v", resp.Album)
		}
		if len(resp.Tracks) != 2 {
			t.Errorf("got %d tracks, want 2", len(resp.Tracks))
		}
	})

	t.Run("unknown album", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/xrpc/music/album/99999", nil))
		if w.Code != 404 {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})
}
