package config

// TagWeights orders command tags in the help listing. Unlisted tags sort
// after these, alphabetically.
var TagWeights = map[string]int{
	"info":     0,
	"text":     10,
	"utility":  20,
	"alias":    30,
	"settings": 50,
}
