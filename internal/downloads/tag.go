package downloads

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/charmbracelet/log"
	dtag "github.com/dhowden/tag"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"

	"github.com/tidewire/federate/internal/models"
)

// coverArt carries cover bytes resolved by the caller (the download manager,
// via the service registry's GetCoverURL) so tagging never makes its own
// network calls.
type coverArt struct {
	data []byte
	mime string
}

// tagFile dispatches by file extension. cover may be nil when no art
// resolved. The download path always ends in .flac (see step 4 of the
// scheduling loop); the .m4a branch exists only because some providers'
// native containers differ, and is exercised by tests using a fake
// extension rather than by any real download.
func tagFile(path string, t models.Track, cover *coverArt, logger *log.Logger) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return tagFLAC(path, t, cover)
	case ".mp3":
		return tagID3(path, t)
	case ".m4a":
		if logger != nil {
			logger.Warn("m4a tagging unsupported, leaving file untagged", "path", path)
		}
		return nil
	default:
		return nil
	}
}

// hasEmbeddedArt reports whether the file at path already carries a
// picture frame, so the caller can skip resolving and re-embedding cover
// art the provider's stream already delivered. A file that fails to parse
// is treated as carrying no art, which just falls back to the normal
// fetch-and-embed path.
func hasEmbeddedArt(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	meta, err := dtag.ReadFrom(f)
	if err != nil {
		return false
	}
	return meta.Picture() != nil
}

// tagFLAC rewrites the file's VORBIS_COMMENT block with title/artist/album,
// and embeds cover art as a PICTURE block when available. A file that fails
// to parse as FLAC is left untagged rather than failing the download outright.
func tagFLAC(path string, t models.Track, cover *coverArt) error {
	f, err := flac.ParseFile(path)
	if err != nil {
		return nil
	}

	// Only a new cover replaces an existing PICTURE block; with none to
	// embed, whatever art the stream already carried is left alone.
	replacingArt := cover != nil && len(cover.data) > 0
	kept := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type == flac.VorbisComment || (replacingArt && block.Type == flac.Picture) {
			continue
		}
		kept = append(kept, block)
	}
	f.Meta = kept

	comments := flacvorbis.New()
	if err := comments.Add(flacvorbis.FIELD_TITLE, t.Title); err != nil {
		return err
	}
	if err := comments.Add(flacvorbis.FIELD_ARTIST, t.Artist); err != nil {
		return err
	}
	if err := comments.Add(flacvorbis.FIELD_ALBUM, t.Album); err != nil {
		return err
	}

	block := comments.Marshal()
	f.Meta = append(f.Meta, &block)

	if cover != nil && len(cover.data) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "cover", cover.data, cover.mime)
		if err == nil {
			picBlock := pic.Marshal()
			f.Meta = append(f.Meta, &picBlock)
		}
	}

	return f.Save(path)
}

// tagID3 writes ID3v2.4 TIT2/TPE1/TALB frames.
func tagID3(path string, t models.Track) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return nil
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(t.Title)
	tag.SetArtist(t.Artist)
	tag.SetAlbum(t.Album)

	return tag.Save()
}
