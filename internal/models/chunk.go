package models

import "strconv"

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
}

// Metadata flattens the chunk's provenance into the string map the vector store keeps.
func (c Chunk) Metadata() map[string]string {
	return map[string]string{
		MetaSource:  c.Source,
		MetaChunkID: strconv.Itoa(c.ChunkID),
		MetaPage:    strconv.Itoa(c.PageNumber),
	}
}

// SearchResult is a chunk returned from a subject store with its similarity score.
type SearchResult struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float32           `json:"similarity"`
}

// Source returns the originating file name of the result.
func (r SearchResult) Source() string {
	return r.Metadata[MetaSource]
}

type PromptResponse struct {
	Query   string
	Answer  string
	Sources []SearchResult
}

// SubjectInfo is the aggregate metadata reported for a subject.
type SubjectInfo struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	DocumentCount     int    `json:"document_count"`
	UploadedFileCount int    `json:"uploaded_file_count"`
}
