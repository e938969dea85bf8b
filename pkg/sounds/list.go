package sounds

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultPrefix is the URL path prefix under which audio files are served.
const DefaultPrefix = "/audio"

var audioExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".aiff": "audio/aiff",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
}

// An Entry is one playable audio file discovered in the sound directory.
type Entry struct {
	Name      string `json:"name"`      // file name without extension
	Path      string `json:"path"`      // URL path, e.g. "/audio/rain.mp3"
	Extension string `json:"extension"` // lower case, without the dot
}

// DisplayName returns Name formatted for presentation.
func (e Entry) DisplayName() string {
	return DisplayName(e.Name)
}

// IsAudioFile reports whether name has one of the recognized audio
// extensions. The comparison is case-insensitive.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ContentType returns the MIME type for a recognized audio file name, or ""
// if the extension is not recognized.
func ContentType(name string) string {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// List returns the URL paths of the audio files in dir, each of the form
// prefix + "/" + filename. Order follows directory enumeration and should not
// be relied upon.
//
// If dir does not exist it is created and an empty list is returned.
func List(dir, prefix string) ([]string, error) {
	entries, err := Entries(dir, prefix)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	return paths, nil
}

// Entries is like List but returns the full Entry for each file.
func Entries(dir, prefix string) ([]Entry, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return []Entry{}, nil
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !IsAudioFile(dirEntry.Name()) {
			continue
		}
		out = append(out, newEntry(dirEntry.Name(), prefix))
	}
	return out, nil
}

func newEntry(fileName, prefix string) Entry {
	ext := filepath.Ext(fileName)
	return Entry{
		Name:      strings.TrimSuffix(fileName, ext),
		Path:      prefix + "/" + fileName,
		Extension: strings.ToLower(strings.TrimPrefix(ext, ".")),
	}
}

// EntryFromPath rebuilds the Entry for a URL path produced by List.
func EntryFromPath(urlPath string) Entry {
	return newEntry(path.Base(urlPath), path.Dir(urlPath))
}

// DisplayName converts a file name such as "tavern-ambience" to
// "Tavern Ambience": hyphens become spaces and the first letter of every word
// is upper-cased. The rest of each word is left alone.
func DisplayName(name string) string {
	words := strings.Split(strings.ReplaceAll(name, "-", " "), " ")
	for i, word := range words {
		r, size := utf8.DecodeRuneInString(word)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + word[size:]
	}
	return strings.Join(words, " ")
}
