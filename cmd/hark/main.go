package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/K3das/hark/asr"
	"github.com/K3das/hark/asr/speechapi"
	workerswhisper "github.com/K3das/hark/asr/workers-whisper"
	"github.com/K3das/hark/audio"
	"github.com/K3das/hark/discord"
	"github.com/K3das/hark/media"
	"github.com/K3das/hark/messages"
	"github.com/K3das/hark/pipeline"
	"github.com/K3das/hark/recorder"
	"github.com/K3das/hark/store"
	"github.com/K3das/hark/utils"
	"github.com/caarlos0/env/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var CommitHash = ""

const (
	backendSpeechAPI      = "speech_api"
	backendWorkersWhisper = "workers_whisper"
)

type config struct {
	SampleRate int `env:"SAMPLE_RATE" envDefault:"16000"`
	Channels   int `env:"CHANNELS" envDefault:"1"`
	// replay a WAV file instead of the default input device
	InputFile string `env:"INPUT_FILE"`

	ArtifactDir     string        `env:"ARTIFACT_DIR"`
	ArtifactFormat  string        `env:"ARTIFACT_FORMAT" envDefault:"flac"`
	MinChunks       int           `env:"MIN_CHUNKS" envDefault:"4"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	MaxArtifactSize int           `env:"MAX_ARTIFACT_SIZE" envDefault:"10485760"`

	Detector recorder.Options `envPrefix:"DETECTOR_"`
	Limits   recorder.Limits  `envPrefix:"LIMITS_"`

	FFmpegBinary   string        `env:"FFMPEG_BINARY"`
	FFprobeBinary  string        `env:"FFPROBE_BINARY"`
	FFmpegTimeout  time.Duration `env:"FFMPEG_TIMEOUT"`
	ASRBackend     string        `env:"ASR_BACKEND" envDefault:"speech_api"`
	PostgresDSN    string        `env:"POSTGRES_DSN"`
	DiscordToken   string        `env:"DISCORD_TOKEN"`
	Servers        []string      `env:"SERVERS"`
	DiscordChannel string        `env:"DISCORD_CHANNEL"`
}

const environmentPrefix = "HARK_"
const logLevelEnvKey = environmentPrefix + "LOG_LEVEL"

func createLog() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = ""

	logLevelValue := os.Getenv(logLevelEnvKey)
	logLevel, logLevelErr := zapcore.ParseLevel(logLevelValue)

	if logLevelErr != nil {
		logLevel = zapcore.InfoLevel
	}

	rawLog := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		logLevel,
	)).Named("hark")

	if CommitHash != "" {
		rawLog = rawLog.With(zap.String("commit", CommitHash))
	}

	if logLevelErr != nil && logLevelValue != "" {
		rawLog.With(zap.String(logLevelEnvKey, logLevelValue)).Warn("unable to parse log level, using INFO")
	}

	return rawLog
}

// backend options are only parsed for the selected backend, so the other
// one's required variables don't have to be set
func createASR(backend string) (asr.SpeechRecognitionAPI, error) {
	switch backend {
	case backendSpeechAPI:
		options := speechapi.SpeechAPIClientOptions{}
		err := env.ParseWithOptions(&options, env.Options{
			Prefix: environmentPrefix + "ASR_SPEECH_API_",
		})
		if err != nil {
			return nil, fmt.Errorf("parsing speech api config: %w", err)
		}
		return speechapi.NewSpeechAPIClient(options)
	case backendWorkersWhisper:
		options := workerswhisper.WorkersWhisperClientOptions{}
		err := env.ParseWithOptions(&options, env.Options{
			Prefix: environmentPrefix + "ASR_WORKERS_WHISPER_",
		})
		if err != nil {
			return nil, fmt.Errorf("parsing workers whisper config: %w", err)
		}
		return workerswhisper.NewWorkersWhisperClient(options), nil
	}
	return nil, fmt.Errorf("unknown asr backend %q", backend)
}

func openSource(parentLogger *zap.Logger, cfg config) (audio.ChunkSource, error) {
	if cfg.InputFile != "" {
		return audio.OpenWAVSource(cfg.InputFile)
	}
	return audio.OpenPortAudioSource(parentLogger, audio.Format{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
	})
}

func main() {
	parentLogger := createLog()
	defer parentLogger.Sync()

	log := parentLogger.Named("main")
	log.With(zap.String("min_log_level", parentLogger.Level().String())).Info("starting")

	cfg := config{}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix: environmentPrefix,
	}); err != nil {
		log.Fatal("failed to parse config", zap.Error(err))
	}

	asrClient, err := createASR(cfg.ASRBackend)
	if err != nil {
		log.Fatal("failed to create asr client", zap.Error(err))
	}

	source, err := openSource(parentLogger, cfg)
	if err != nil {
		log.Fatal("failed to open audio source", zap.Error(err))
	}
	defer source.Close()
	log.With(
		zap.Int("sample_rate", source.Format().SampleRate),
		zap.Int("channels", source.Format().Channels),
		zap.String("input_file", cfg.InputFile),
	).Info("audio source open")

	ffmpeg := media.NewFFmpeg(
		media.WithFFmpegBinary(cfg.FFmpegBinary),
		media.WithFFprobeBinary(cfg.FFprobeBinary),
		media.WithCommandTimeout(cfg.FFmpegTimeout),
	)

	var handlers []pipeline.Handler
	handlers = append(handlers, func(ctx context.Context, t asr.Transcript) {
		utils.GetLogFromContext(ctx, log).With(
			zap.String("text", t.Text()),
			zap.Strings("candidates", t.Candidates),
		).Info("transcript")
	})

	var s *store.Store
	if cfg.PostgresDSN != "" {
		s = store.NewStore(context.Background(), parentLogger)
		err := s.Connect(context.Background(), cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect store", zap.Error(err))
		}
		defer s.Close()

		handlers = append(handlers, func(ctx context.Context, t asr.Transcript) {
			err := s.SaveTranscript(ctx, t)
			if err != nil {
				utils.GetLogFromContext(ctx, log).Error("failed to save transcript", zap.Error(err))
			}
		})
	}

	// the bot is created after the pipeline it controls, so its handler is
	// attached late
	var discordBot *discord.DiscordBot
	handlers = append(handlers, func(ctx context.Context, t asr.Transcript) {
		if discordBot != nil {
			discordBot.HandleTranscript(ctx, t)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := pipeline.New(ctx, pipeline.Options{
		ParentLogger: parentLogger,
		Source:       source,
		ASR:          asrClient,
		Exporter:     recorder.NewExporter(parentLogger, ffmpeg),
		Handler: func(ctx context.Context, t asr.Transcript) {
			for _, h := range handlers {
				h(ctx, t)
			}
		},
		Detector:        cfg.Detector,
		Limits:          cfg.Limits,
		ArtifactDir:     cfg.ArtifactDir,
		ArtifactFormat:  cfg.ArtifactFormat,
		MinChunks:       cfg.MinChunks,
		RequestTimeout:  cfg.RequestTimeout,
		MaxArtifactSize: cfg.MaxArtifactSize,
	})
	if err != nil {
		log.Fatal("failed to create pipeline", zap.Error(err))
	}
	defer p.Exit()

	g := errgroup.Group{}

	if cfg.DiscordToken != "" {
		messageProvider, err := messages.NewMessageProvider()
		if err != nil {
			log.Fatal("failed to create message provider", zap.Error(err))
		}

		var botOptions []discord.DiscordBotOptionsExtraOptions
		if s != nil {
			botOptions = append(botOptions, discord.WithTranscriptLog(s))
		}

		bot, err := discord.NewDiscordBot(ctx, discord.DiscordBotOptions{
			Token:        cfg.DiscordToken,
			Servers:      cfg.Servers,
			ChannelID:    cfg.DiscordChannel,
			ParentLogger: parentLogger,
			Messages:     messageProvider,
			Controller:   p,
		}, botOptions...)
		if err != nil {
			log.Fatal("failed to create discord bot", zap.Error(err))
		}
		discordBot = bot

		// Discord bot
		g.Go(func() error {
			defer cancel()

			return bot.Run(ctx)
		})
	}

	err = p.Play()
	if err != nil {
		log.Fatal("failed to start pipeline", zap.Error(err))
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-shutdownSignal:
			log.Info("received signal, shutting down")
			break loop
		case <-ctx.Done():
			log.Info("context done, shutting down")
			break loop
		case err := <-p.Errors():
			if errors.Is(err, io.EOF) {
				log.Info("input exhausted, shutting down")
				break loop
			}
			// capture stopped, the bot can still resume it
			log.Error("pipeline error", zap.Error(err))
			if discordBot == nil {
				break loop
			}
		}
	}

	cancel()
	p.Exit()

	err = g.Wait()
	if err != nil {
		log.Fatal("error group error", zap.Error(err))
	}
}
