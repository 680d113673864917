// Package language normalizes the language codes Plex reports for streams.
//
// Plex sends ISO 639-2 codes (sometimes the bibliographic variant) in
// languageCode and an English name in language. The helpers here map either
// form onto x/text base languages so CLI output can show a readable name for
// tracks that only carry a code. Rule matching never sees these names.
package language
