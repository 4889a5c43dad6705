package search

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/tidewire/federate/internal/models"
)

// Relevance point values (§4.6). Field comparisons are case-insensitive.
const (
	scorePrimaryExact    = 1000
	scorePrimaryPrefix   = 500
	scorePrimaryContains = 200

	scoreSecondaryExact    = 800
	scoreSecondaryPrefix   = 400
	scoreSecondaryContains = 150

	biasTidal          = 50
	biasBandcamp       = 40
	biasYouTubeGeneral = 30 // tracks & artists
	biasYouTubeAlbum   = 20

	penaltyShortTrack = -100 // duration < 60s
	penaltyLongTrack  = -50  // duration > 600s

	bonusLargeAlbum  = 100 // >= 8 tracks
	bonusMediumAlbum = 50  // >= 4 tracks
)

// fieldScore scores a single field comparison against query using the
// exact/prefix/contains tiers. Only the highest-tier match that applies
// counts; tiers do not stack.
func fieldScore(field, query string, exact, prefix, contains int) int {
	if query == "" || field == "" {
		return 0
	}
	f := strings.ToLower(field)
	q := strings.ToLower(query)
	switch {
	case f == q:
		return exact
	case strings.HasPrefix(f, q):
		return prefix
	case strings.Contains(f, q):
		return contains
	default:
		return 0
	}
}

func providerBiasTrackOrArtist(service models.ServiceType) int {
	switch service {
	case models.ServiceTidal:
		return biasTidal
	case models.ServiceBandcamp:
		return biasBandcamp
	case models.ServiceYouTube:
		return biasYouTubeGeneral
	default:
		return 0
	}
}

func providerBiasAlbum(service models.ServiceType) int {
	switch service {
	case models.ServiceTidal:
		return biasTidal
	case models.ServiceBandcamp:
		return biasBandcamp
	case models.ServiceYouTube:
		return biasYouTubeAlbum
	default:
		return 0
	}
}

// scoreTrack implements the track row of the relevance table: primary field
// is title, secondary is artist, plus provider bias and duration penalties.
func scoreTrack(query string, t models.Track) int {
	total := fieldScore(t.Title, query, scorePrimaryExact, scorePrimaryPrefix, scorePrimaryContains)
	total += fieldScore(t.Artist, query, scoreSecondaryExact, scoreSecondaryPrefix, scoreSecondaryContains)
	total += providerBiasTrackOrArtist(t.Service)
	switch {
	case t.DurationSeconds > 0 && t.DurationSeconds < 60:
		total += penaltyShortTrack
	case t.DurationSeconds > 600:
		total += penaltyLongTrack
	}
	return total
}

// scoreAlbum: primary is title, secondary is artist, plus track-count bonus.
func scoreAlbum(query string, a models.Album) int {
	total := fieldScore(a.Title, query, scorePrimaryExact, scorePrimaryPrefix, scorePrimaryContains)
	total += fieldScore(a.Artist, query, scoreSecondaryExact, scoreSecondaryPrefix, scoreSecondaryContains)
	total += providerBiasAlbum(a.Service)
	switch {
	case a.NumTracks >= 8:
		total += bonusLargeAlbum
	case a.NumTracks >= 4:
		total += bonusMediumAlbum
	}
	return total
}

// scoreArtist: primary is name; there is no secondary field.
func scoreArtist(query string, a models.Artist) int {
	total := fieldScore(a.Name, query, scorePrimaryExact, scorePrimaryPrefix, scorePrimaryContains)
	total += providerBiasTrackOrArtist(a.Service)
	return total
}

// rankResults scores every item in results against query and stable-sorts
// each list descending so ties keep their fan-out (interleaved) order.
func rankResults(query string, results models.SearchResults) models.SearchResults {
	tracks, _ := sortByScore(results.Tracks, func(t models.Track) int { return scoreTrack(query, t) })
	albums, _ := sortByScore(results.Albums, func(a models.Album) int { return scoreAlbum(query, a) })
	artists, _ := sortByScore(results.Artists, func(a models.Artist) int { return scoreArtist(query, a) })

	return models.SearchResults{Tracks: tracks, Albums: albums, Artists: artists}
}

// sortByScore stable-sorts a copy of items descending by score(item),
// computed once per item up front so the comparator never recomputes it
// against the wrong index mid-sort.
func sortByScore[T any](items []T, score func(T) int) ([]T, []int) {
	type scored struct {
		item T
		rank int
	}
	pairs := make([]scored, len(items))
	for i, it := range items {
		pairs[i] = scored{item: it, rank: score(it)}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].rank > pairs[j].rank })
	out := make([]T, len(pairs))
	scores := make([]int, len(pairs))
	for i, p := range pairs {
		out[i] = p.item
		scores[i] = p.rank
	}
	return out, scores
}

// FuzzyFilter applies an optional second-stage fuzzy filter over each
// result list's searchable text, keeping only matches and re-sorting by
// fuzzy score descending. An empty filter is a no-op (§4.6).
func FuzzyFilter(results models.SearchResults, filterText string) models.SearchResults {
	if strings.TrimSpace(filterText) == "" {
		return results
	}

	trackText := make([]string, len(results.Tracks))
	for i, t := range results.Tracks {
		trackText[i] = t.Title + " " + t.Artist + " " + t.Album
	}
	albumText := make([]string, len(results.Albums))
	for i, a := range results.Albums {
		albumText[i] = a.Title + " " + a.Artist
	}
	artistText := make([]string, len(results.Artists))
	for i, a := range results.Artists {
		artistText[i] = a.Name
	}

	return models.SearchResults{
		Tracks:  filterBy(results.Tracks, trackText, filterText),
		Albums:  filterBy(results.Albums, albumText, filterText),
		Artists: filterBy(results.Artists, artistText, filterText),
	}
}

// filterBy runs the fuzzy matcher over candidates (text aligned by index to
// items) and returns the surviving items re-ordered by match score
// descending.
func filterBy[T any](items []T, text []string, pattern string) []T {
	matches := fuzzy.Find(pattern, text)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	out := make([]T, 0, len(matches))
	for _, m := range matches {
		out = append(out, items[m.Index])
	}
	return out
}
