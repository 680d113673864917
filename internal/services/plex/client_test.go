package plex_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"defaulter/internal/selection"
	"defaulter/internal/services/plex"
	"defaulter/internal/update"
)

const sectionsXML = `<MediaContainer size="3">
<Directory key="1" type="movie" title="Movies"/>
<Directory key="2" type="show" title="TV Shows"/>
<Directory key="3" type="artist" title="Music"/>
</MediaContainer>`

const episodeXML = `<MediaContainer size="1">
<Video ratingKey="501" type="episode" title="Pilot" parentTitle="Season 1" grandparentTitle="Show" index="1" updatedAt="1700000000">
<Media><Part id="9001">
<Stream id="1" streamType="1" codec="h264"/>
<Stream id="2" streamType="2" codec="aac" language="English" displayTitle="English (AAC Stereo)" extendedDisplayTitle="Main (English AAC)" selected="1"/>
<Stream id="3" streamType="3" codec="srt" language="English" displayTitle="English (SRT)" title="SDH" forced="1"/>
</Part></Media>
</Video>
</MediaContainer>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *plex.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return plex.New(plex.Options{
		BaseURL:          server.URL + "/",
		PlexTVURL:        server.URL,
		OwnerToken:       "owner-token",
		ClientIdentifier: "machine-1",
		HTTP:             server.Client(),
	})
}

func TestLibrariesKeepsMovieAndShowSections(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/sections" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Plex-Token"); got != "owner-token" {
			t.Fatalf("expected owner token, got %q", got)
		}
		if r.Header.Get("X-Plex-Product") != "Defaulter" || r.Header.Get("X-Plex-Client-Identifier") != "machine-1" {
			t.Fatalf("missing standard headers: %v", r.Header)
		}
		_, _ = w.Write([]byte(sectionsXML))
	})

	libraries, err := client.Libraries(context.Background())
	if err != nil {
		t.Fatalf("Libraries: %v", err)
	}
	if len(libraries) != 2 || libraries[0].Title != "Movies" || libraries[1].Type != "show" {
		t.Fatalf("unexpected libraries: %+v", libraries)
	}
}

func TestItemsFiltersByUpdatedAt(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/sections/2/all" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`<MediaContainer>
<Directory ratingKey="10" type="show" title="Old" updatedAt="100"/>
<Directory ratingKey="11" type="show" title="New" updatedAt="300"/>
</MediaContainer>`))
	})

	items, err := client.Items(context.Background(), "2", 200)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || items[0].RatingKey != "11" || items[0].Type != "show" {
		t.Fatalf("unexpected items: %+v", items)
	}

	all, err := client.Items(context.Background(), "2", 0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected every item with since=0, got %d", len(all))
	}
}

func TestPartParsesStreamsAndEpisodeTitle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/metadata/501" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(episodeXML))
	})

	part, err := client.Part(context.Background(), "501")
	if err != nil {
		t.Fatalf("Part: %v", err)
	}
	if part.PartID != 9001 || part.RatingKey != "501" {
		t.Fatalf("unexpected part ids: %+v", part)
	}
	if part.Title != "Show - Season 1 - Episode 1 - Pilot" {
		t.Fatalf("unexpected title %q", part.Title)
	}
	if len(part.Tracks) != 2 {
		t.Fatalf("expected video stream dropped, got %+v", part.Tracks)
	}
	audio := part.Tracks[0]
	if audio.Kind != selection.KindAudio || audio.ID != 2 || !audio.Selected || audio.ExtendedDisplayTitle != "Main (English AAC)" {
		t.Fatalf("unexpected audio track: %+v", audio)
	}
	sub := part.Tracks[1]
	if sub.Kind != selection.KindSubtitle || sub.Selected {
		t.Fatalf("unexpected subtitle track: %+v", sub)
	}
	if v, ok := sub.Field("title"); !ok || v != "SDH" {
		t.Fatalf("expected extra attribute title=SDH, got %q %v", v, ok)
	}
}

func TestPartKeepsReportedLanguage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<MediaContainer><Video ratingKey="8" type="movie" title="Old">
<Media><Part id="80">
<Stream id="11" streamType="2" codec="ac3" languageCode="jpn"/>
<Stream id="12" streamType="3" codec="ass" languageCode="fre" language="Français"/>
</Part></Media></Video></MediaContainer>`))
	})

	part, err := client.Part(context.Background(), "8")
	if err != nil {
		t.Fatalf("Part: %v", err)
	}
	if len(part.Tracks) != 2 {
		t.Fatalf("unexpected tracks: %+v", part.Tracks)
	}
	if part.Tracks[0].Language != "" {
		t.Fatalf("missing language must stay empty, got %q", part.Tracks[0].Language)
	}
	if code, ok := part.Tracks[0].Field("languageCode"); !ok || code != "jpn" {
		t.Fatalf("expected languageCode jpn, got %q %v", code, ok)
	}
	if part.Tracks[1].Language != "Français" {
		t.Fatalf("reported language must be kept, got %q", part.Tracks[1].Language)
	}
}

func TestPartWithoutMediaHasNoTracks(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<MediaContainer><Video ratingKey="7" type="movie" title="Broken"/></MediaContainer>`))
	})

	part, err := client.Part(context.Background(), "7")
	if err != nil {
		t.Fatalf("Part: %v", err)
	}
	if len(part.Tracks) != 0 || part.Title != "Broken" {
		t.Fatalf("unexpected part: %+v", part)
	}
}

func TestChildrenReturnsSeasons(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/metadata/10/children" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`<MediaContainer><Directory ratingKey="20" type="season" index="1" title="Season 1"/></MediaContainer>`))
	})

	children, err := client.Children(context.Background(), "10")
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0].Type != "season" || children[0].Index != 1 {
		t.Fatalf("unexpected children: %+v", children)
	}
}

func TestSharedUsers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/servers/machine-1/shared_servers" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`<MediaContainer>
<SharedServer id="1" username="alice" accessToken="tok-a"/>
<SharedServer id="2" username="" accessToken="tok-x"/>
<SharedServer id="3" username="bob" accessToken="tok-b"/>
</MediaContainer>`))
	})

	users, err := client.SharedUsers(context.Background())
	if err != nil {
		t.Fatalf("SharedUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].AccessToken != "tok-b" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestCheckAccessUsesViewerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	if err := client.CheckAccess(context.Background(), "good", "1"); err != nil {
		t.Fatalf("expected access, got %v", err)
	}
	err := client.CheckAccess(context.Background(), "bad", "1")
	if !errors.Is(err, plex.ErrAuthorizationMissing) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestSetDefaultStreamsSendsViewerRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/library/parts/9001" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("audioStreamID") != "2" || q.Get("subtitleStreamID") != "0" {
			t.Fatalf("unexpected query %v", q)
		}
		if r.Header.Get("X-Plex-Token") != "alice-token" || r.Header.Get("X-Plex-Username") != "alice" {
			t.Fatalf("unexpected viewer headers: %v", r.Header)
		}
		if r.Header.Get("X-Plex-Device-Name") != "Defaulter/alice" {
			t.Fatalf("unexpected device name %q", r.Header.Get("X-Plex-Device-Name"))
		}
		w.WriteHeader(http.StatusOK)
	})

	plan := selection.Plan{
		PartID:    9001,
		Audio:     &selection.Selection{ID: 2, Label: "English"},
		Subtitles: &selection.Selection{ID: 0, Label: selection.DisabledLabel},
	}
	resp, err := client.SetDefaultStreams(context.Background(), "alice", "alice-token", plan)
	if err != nil {
		t.Fatalf("SetDefaultStreams: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestSetDefaultStreamsOmitsUnchangedKinds(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("audioStreamID") || q.Get("subtitleStreamID") != "5" {
			t.Fatalf("unexpected query %v", q)
		}
		w.WriteHeader(http.StatusOK)
	})

	plan := selection.Plan{PartID: 1, Subtitles: &selection.Selection{ID: 5, Label: "English"}}
	if _, err := client.SetDefaultStreams(context.Background(), "bob", "tok", plan); err != nil {
		t.Fatalf("SetDefaultStreams: %v", err)
	}
}

func TestSetDefaultStreamsErrorCarriesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.SetDefaultStreams(context.Background(), "alice", "tok", selection.Plan{PartID: 1, Audio: &selection.Selection{ID: 2}})
	var coder update.StatusCoder
	if !errors.As(err, &coder) || coder.HTTPStatus() != http.StatusForbidden {
		t.Fatalf("expected status coder with 403, got %v", err)
	}
	if errors.Is(err, plex.ErrAuthorizationMissing) {
		t.Fatal("403 must not match authorization missing")
	}
}

func TestMetadataReadsRespectCancelledContext(t *testing.T) {
	client := plex.New(plex.Options{
		BaseURL:                   "http://127.0.0.1:1",
		MetadataRequestsPerSecond: 1,
		HTTP:                      http.DefaultClient,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Part(ctx, "1"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
