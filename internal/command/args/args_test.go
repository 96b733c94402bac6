package args

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"spaces only", "   ", nil},
		{"plain", "a b  c", []string{"a", "b", "c"}},
		{"quoted", `say "hello world" now`, []string{"say", "hello world", "now"}},
		{"empty quotes", `a "" b`, []string{"a", "", "b"}},
		{"unterminated", `a "b c`, []string{"a", "b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestFromText(t *testing.T) {
	specs := []Spec{
		{Name: "times", Kind: KindInteger},
		{Name: "who", Kind: KindUser},
		{Name: "text", Kind: KindString},
	}

	vals := FromText(`3 <@!42> hello there world`, specs)
	require.Len(t, vals, 3)
	assert.Equal(t, Integer{Key: "times", V: 3}, vals[0])
	assert.Equal(t, User{Key: "who", ID: "42"}, vals[1])
	assert.Equal(t, String{Key: "text", V: "hello there world"}, vals[2])

	t.Run("unparseable falls back to string", func(t *testing.T) {
		vals := FromText("many", specs)
		require.Len(t, vals, 1)
		assert.Equal(t, String{Key: "times", V: "many"}, vals[0])
	})

	t.Run("extra tokens are positional", func(t *testing.T) {
		vals := FromText("a b", nil)
		assert.Equal(t, []Value{String{Key: "0", V: "a"}, String{Key: "1", V: "b"}}, vals)
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "hi", Format(String{V: "hi"}))
	assert.Equal(t, "-7", Format(Integer{V: -7}))
	assert.Equal(t, "1.5", Format(Number{V: 1.5}))
	assert.Equal(t, "true", Format(Boolean{V: true}))
	assert.Equal(t, "<@1>", Format(User{ID: "1"}))
	assert.Equal(t, "<#2>", Format(Channel{ID: "2"}))
	assert.Equal(t, "<@&3>", Format(Role{ID: "3"}))
	assert.Equal(t, "", Format(nil))
}

func TestLookupAndJoin(t *testing.T) {
	vals := []Value{String{Key: "a", V: "x"}, Integer{Key: "b", V: 2}}

	v, ok := Lookup(vals, "b")
	require.True(t, ok)
	assert.Equal(t, KindInteger, v.Kind())
	assert.Equal(t, "", StringOf(vals, "missing"))
	assert.Equal(t, "x 2", Join(vals))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Integer")
	require.NoError(t, err)
	assert.Equal(t, KindInteger, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindString, k)

	_, err = ParseKind("colour")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFromOption(t *testing.T) {
	tests := []struct {
		name string
		opt  *discordgo.ApplicationCommandInteractionDataOption
		want Value
	}{
		{
			name: "string",
			opt:  &discordgo.ApplicationCommandInteractionDataOption{Name: "text", Type: discordgo.ApplicationCommandOptionString, Value: "hi"},
			want: String{Key: "text", V: "hi"},
		},
		{
			name: "integer arrives as float64",
			opt:  &discordgo.ApplicationCommandInteractionDataOption{Name: "n", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(4)},
			want: Integer{Key: "n", V: 4},
		},
		{
			name: "boolean",
			opt:  &discordgo.ApplicationCommandInteractionDataOption{Name: "on", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
			want: Boolean{Key: "on", V: true},
		},
		{
			name: "channel",
			opt:  &discordgo.ApplicationCommandInteractionDataOption{Name: "where", Type: discordgo.ApplicationCommandOptionChannel, Value: "99"},
			want: Channel{Key: "where", ID: "99"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromOption(tt.opt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("subcommand is rejected", func(t *testing.T) {
		_, err := FromOption(&discordgo.ApplicationCommandInteractionDataOption{Name: "set", Type: discordgo.ApplicationCommandOptionSubCommand})
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := FromOption(&discordgo.ApplicationCommandInteractionDataOption{Name: "x", Type: 99})
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}

func TestOptionTypeCoversEveryKind(t *testing.T) {
	for k := range kindNames {
		_, err := OptionType(k)
		assert.NoError(t, err, k.String())
	}
	_, err := OptionType(Kind(0))
	assert.ErrorIs(t, err, ErrUnknownKind)
}
