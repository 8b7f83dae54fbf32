// Package textutil provides small text helpers shared across transientbot.
//
// The main use is turning transient identifiers such as "J1234+5678_obs1" into
// file-name tokens for thumbnails and significance maps, folding any accented
// or non-ASCII characters through golang.org/x/text so the result is safe on
// every filesystem.
package textutil
