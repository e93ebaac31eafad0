package ingest

import (
	"strings"
	"unicode/utf8"

	"briefsmith/internal/textutil"
)

// duplicateThreshold is the cosine similarity above which a chunk is treated
// as a repeat of an earlier one.
const duplicateThreshold = 0.92

// truncateRunes caps text at limit characters, cutting at the last word
// boundary when one is near.
func truncateRunes(text string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if idx := strings.LastIndexAny(cut, " \n"); idx > len(cut)*9/10 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut), true
}

// ChunkWords splits text into windows of size words, each sharing overlap
// words with the previous window.
func ChunkWords(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

type chunkSet struct {
	chunks []string
	prints []*textutil.Fingerprint
}

// add keeps body unless it nearly repeats a chunk already in the set.
func (s *chunkSet) add(label, body string) bool {
	fp := textutil.NewFingerprint(body)
	if fp == nil {
		return false
	}
	for _, prior := range s.prints {
		if textutil.CosineSimilarity(prior, fp) >= duplicateThreshold {
			return false
		}
	}
	s.prints = append(s.prints, fp)
	s.chunks = append(s.chunks, "[Source: "+label+"]\n"+body)
	return true
}
