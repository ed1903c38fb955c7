package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/chobits/backend/internal/analysis/reply"
	"github.com/zhouzirui/chobits/backend/internal/config"
	speechmodel "github.com/zhouzirui/chobits/backend/internal/model/speech"
	"github.com/zhouzirui/chobits/backend/internal/playback"
	"github.com/zhouzirui/chobits/backend/internal/service/speech"
)

var (
	address     string
	revealDelay time.Duration

	ttsVoice  string
	ttsOutput string
	ttsLang   string
)

// parseCmd prints the parsed reply as JSON
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a raw model reply",
	Long: `Read a raw model reply from file (or stdin when omitted or "-")
and print the reasoning trace, segment timeline and cleaned text as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

// playCmd runs the silent sequencer and prints every event
var playCmd = &cobra.Command{
	Use:   "play [file]",
	Short: "Play a raw model reply in the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlay,
}

// ttsCmd writes synthesized audio to a file
var ttsCmd = &cobra.Command{
	Use:   "tts <text>",
	Short: "Synthesize speech with the configured backend",
	Long: `Synthesize text with the Volcengine TTS backend configured through
SPEECH_* environment variables and write the audio to --out.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTTS,
}

func init() {
	for _, c := range []*cobra.Command{parseCmd, playCmd} {
		c.Flags().StringVar(&address, "address", reply.DefaultAddress, "Address term substituted for forbidden names")
	}
	playCmd.Flags().DurationVar(&revealDelay, "delay", playback.DefaultRevealDelay, "Pause after each revealed character")

	ttsCmd.Flags().StringVar(&ttsVoice, "voice", "", "Voice ID or alias (default: SPEECH_TTS_VOICE)")
	ttsCmd.Flags().StringVarP(&ttsOutput, "out", "o", "", "Output file (default: tts-output-<unix>.<format>)")
	ttsCmd.Flags().StringVar(&ttsLang, "lang", "", "Language code (default: SPEECH_TTS_LANGUAGE)")
}

func readReply(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", errors.New("empty reply")
	}
	return string(raw), nil
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := readReply(cmd, args)
	if err != nil {
		return err
	}

	res := reply.Parse(raw, reply.DefaultSubstitutions(address))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runPlay(cmd *cobra.Command, args []string) error {
	raw, err := readReply(cmd, args)
	if err != nil {
		return err
	}
	res := reply.Parse(raw, reply.DefaultSubstitutions(address))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	seq := playback.New(playback.WithRevealDelay(revealDelay), playback.WithLogger(logger))
	outcome, err := seq.Play(ctx, playback.NewSession(), res.Segments, false, func(e playback.Event) {
		printEvent(out, e)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\npersistent: %s\n", outcome.Persistent)
	for _, c := range outcome.Tally {
		fmt.Fprintf(out, "  %-10s %d\n", c.Code, c.N)
	}
	return nil
}

func printEvent(w io.Writer, e playback.Event) {
	switch e.Kind {
	case playback.EventEmotion:
		marker := ""
		if e.Persistent {
			marker = " (persistent)"
		}
		fmt.Fprintf(w, "\n[#%d emotion %s%s]\n", e.Segment, e.Emotion, marker)
	case playback.EventReveal:
		fmt.Fprint(w, e.Text)
	case playback.EventSpeaking:
		fmt.Fprintf(w, "\n[#%d speaking=%t]\n", e.Segment, e.Speaking)
	}
}

func runTTS(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return errors.New("text is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Speech.Enabled {
		return errors.New("speech is not configured, set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}

	svc := speech.NewService(cfg.Speech.Model(), logger)

	voice := speech.NormalizeVoiceAlias(ttsVoice)
	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}
	lang := ttsLang
	if lang == "" {
		lang = cfg.Speech.TTSLanguage
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := svc.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		Text:      text,
		Voice:     voice,
		Language:  lang,
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	out := ttsOutput
	if out == "" {
		format := resp.Format
		if format == "" {
			format = "mp3"
		}
		out = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}
	if err := os.WriteFile(out, resp.AudioData, 0o644); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes, %dms)\n", out, len(resp.AudioData), resp.Duration)
	return nil
}
