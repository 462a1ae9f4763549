// Package textutil provides text helpers shared by the relocation and
// publication stages.
//
// The primary use cases are:
//   - Sanitizing meeting titles into safe file names
//   - Matching project keywords against meeting titles and summaries
//   - Ranking keyword matches by token similarity
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process lowercases text, splits on non-alphanumeric characters,
// and filters tokens shorter than 3 characters.
package textutil
