package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Soundscape/logger"
	"Soundscape/model"
	"Soundscape/repository"
	"Soundscape/server"
)

var playMix string

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a saved mix until interrupted",
	Long: `Load a saved mix and play it through the audio output without the HTTP
server. Without --mix the first readable saved mix is played.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		defer logger.Sync()

		ctx, stop := signalContext()
		defer stop()

		// the output outlives the signal so fade-outs stay audible
		runCtx, cancelRun := context.WithCancel(context.Background())
		defer cancelRun()
		rt, err := server.NewRuntime(runCtx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		var mix *model.Mix
		if playMix != "" {
			mix, err = rt.Mixes.Load(ctx, playMix)
		} else {
			mix, err = rt.Mixes.FirstValid(ctx)
		}
		if errors.Is(err, repository.ErrMixNotFound) {
			return fmt.Errorf("no saved mix to play")
		}
		if err != nil {
			return err
		}

		n := rt.Mixer.Restore(mix.Tracks)
		fmt.Printf("Playing %q (%d tracks), Ctrl+C to stop\n", mix.Name, n)
		for path, err := range rt.Mixer.PlayAll(ctx) {
			logger.Warn("Track failed to start", logger.Path(path), logger.ErrorField(err))
		}

		<-ctx.Done()
		fmt.Println("Stopping...")
		rt.Mixer.StopAll()
		// let fade-outs finish
		fade := 0.0
		for _, p := range mix.Tracks {
			if p.FadeOutEnabled && p.FadeOutDuration > fade {
				fade = p.FadeOutDuration
			}
		}
		wait, cancel := context.WithTimeout(context.Background(), time.Duration(fade*float64(time.Second)))
		defer cancel()
		<-wait.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVarP(&playMix, "mix", "m", "", "name of the saved mix")
}
