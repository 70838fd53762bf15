// Package catalog provides the language catalog: the read-only set of
// execution profiles describing how to run each supported language.
//
// A profile names the container image, where the source file is placed and
// which commands compile and run it. Command templates are parsed once into
// argument tokens so that the {file} placeholder is substituted per token and
// never re-split.
//
// Usage:
//
//	cat, err := catalog.Load("languages.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	profile, err := cat.Lookup("py")
package catalog
