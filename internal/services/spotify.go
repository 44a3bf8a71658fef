// Spotify Web API response types and conversion to [models.TrackSnapshot]
//
// Types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"github.com/desertthunder/lyrx/internal/models"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// Scopes requested during authorization.
var spotifyScopes = []string{
	"user-read-playback-state",
	"user-read-currently-playing",
	"user-read-recently-played",
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Country     string         `json:"country"`
	Product     string         `json:"product"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyShow is the podcast an episode belongs to.
type SpotifyShow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Publisher string         `json:"publisher"`
	Images    []SpotifyImage `json:"images"`
}

// SpotifyItem is a playable item: a track or a podcast episode.
type SpotifyItem struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	DurationMS int64           `json:"duration_ms"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      *SpotifyAlbum   `json:"album"`
	Show       *SpotifyShow    `json:"show"`
	Images     []SpotifyImage  `json:"images"`
}

// SpotifyDevice is a Connect device.
type SpotifyDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
}

// SpotifyPlayback is the body of both the currently-playing and the player-state endpoints; the latter adds
// device and shuffle information.
type SpotifyPlayback struct {
	IsPlaying            bool           `json:"is_playing"`
	ProgressMS           int64          `json:"progress_ms"`
	CurrentlyPlayingType string         `json:"currently_playing_type"`
	Item                 *SpotifyItem   `json:"item"`
	Device               *SpotifyDevice `json:"device"`
}

type spotifyDevices struct {
	Devices []SpotifyDevice `json:"devices"`
}

type spotifyPlayHistory struct {
	Items []struct {
		Track    SpotifyItem `json:"track"`
		PlayedAt string      `json:"played_at"`
	} `json:"items"`
}

// Snapshot converts the item to a track snapshot, or nil when there is no item (e.g. an ad is playing).
func (p *SpotifyPlayback) Snapshot() *models.TrackSnapshot {
	if p == nil || p.Item == nil || p.Item.ID == "" {
		return nil
	}
	t := p.Item.snapshot()
	t.IsPlaying = p.IsPlaying
	t.ProgressMS = p.ProgressMS
	return t
}

func (i SpotifyItem) snapshot() *models.TrackSnapshot {
	t := &models.TrackSnapshot{ID: i.ID, Title: i.Name, DurationMS: i.DurationMS}

	switch {
	case i.Type == "episode" && i.Show != nil:
		t.Artist = i.Show.Publisher
		if t.Artist == "" {
			t.Artist = i.Show.Name
		}
		t.Album = i.Show.Name
		images := i.Images
		if len(images) == 0 {
			images = i.Show.Images
		}
		t.Artwork = convertImages(images)
	default:
		names := make([]string, 0, len(i.Artists))
		for _, a := range i.Artists {
			names = append(names, a.Name)
		}
		t.Artist = models.JoinArtists(names)
		if i.Album != nil {
			t.Album = i.Album.Name
			t.Artwork = convertImages(i.Album.Images)
		}
	}
	return t
}

func convertImages(images []SpotifyImage) []models.Image {
	out := make([]models.Image, 0, len(images))
	for _, img := range images {
		out = append(out, models.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out
}
