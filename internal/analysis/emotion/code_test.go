package emotion

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]Code{
		"{{happy}}":        Happy,
		"  Shy ":           Shy,
		"{{ BLUSH_SMILE}}": BlushSmile,
		"":                 "",
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestAssetFallsBackForUnknownCodes(t *testing.T) {
	if got := Asset(Code("wink")); got != "chii_smile_01.png" {
		t.Fatalf("unknown code asset = %s", got)
	}
	if got := Asset(Thinking); got != "chii_sleeping.png" {
		t.Fatalf("thinking asset = %s", got)
	}
	if got := AssetPath("{{Crying}}"); got != "/avatars/chii_crying.png" {
		t.Fatalf("AssetPath = %s", got)
	}
}

func TestEveryKnownCodeHasAsset(t *testing.T) {
	for _, c := range All() {
		if !c.Known() {
			t.Fatalf("%s should be known", c)
		}
		if Asset(c) == "" {
			t.Fatalf("%s has no asset", c)
		}
	}
	if Code("wink").Known() {
		t.Fatal("wink should not be known")
	}
}

func TestPromptGroupsOnlyUseKnownCodes(t *testing.T) {
	for _, g := range Groups() {
		for _, tag := range g.Tags {
			if !tag.Code.Known() {
				t.Fatalf("group %s lists unknown code %s", g.Name, tag.Code)
			}
		}
	}
}

func TestVoiceMapping(t *testing.T) {
	if d := Voice(Crying); d.Emotion != LabelSad {
		t.Fatalf("crying voice = %s", d.Emotion)
	}
	if d := Voice(Code("wink")); d.Emotion != LabelNeutral || d.Score != 0 {
		t.Fatalf("unknown voice = %+v", d)
	}
}
