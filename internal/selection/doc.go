// Package selection picks the default audio and subtitle track for a media
// part.
//
// Select evaluates a rule chain against candidate tracks: include
// conditions require every listed substring, exclude conditions reject on
// any, and the first track of the first matching rule wins. Resolver applies
// the chains of one viewer group to a part, including at most one on_match
// override per track kind, and produces a Plan.
package selection
