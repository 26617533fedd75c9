// Package pipeline drives media files through the fixed processing stages:
// scan, analyze, rename, generate_metadata, and upload. Each stage records a
// checkpoint timestamp on the file entry, and the executor always resumes from
// the first stage without a checkpoint, so interrupted work is never repeated.
package pipeline
