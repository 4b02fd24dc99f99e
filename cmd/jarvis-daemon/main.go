package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/afero"

	"jarvis/internal/audio"
	"jarvis/internal/bus"
	"jarvis/internal/config"
	"jarvis/internal/control"
	"jarvis/internal/ipc"
	"jarvis/internal/jarvis"
	"jarvis/internal/lang"
	"jarvis/internal/llm"
	"jarvis/internal/logging"
	"jarvis/internal/mic"
	"jarvis/internal/notify"
	"jarvis/internal/provision"
	"jarvis/internal/proxy"
	"jarvis/internal/system"
	"jarvis/internal/tts"
	"jarvis/internal/tts/espeak"
	"jarvis/internal/wake"
	"jarvis/pkg/stt"
	"jarvis/pkg/stt/whisper"
)

const earconFile = "assets/beep.mp3"

func main() {
	root := cli.StringP("root", "r", ".", "Working directory holding output/, logs/, config/ and .env")
	envFile := cli.StringP("env", "e", "", "Env file path (default <root>/.env)")
	cfgFile := cli.StringP("config", "c", "", "User config path (default <root>/"+config.UserFile+")")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks proxy address for the HTTP APIs")
	modelPath := cli.StringP("model", "m", "models/ggml-base.bin", "Whisper model path")
	sttMode := cli.String("stt", "", "Transcriber: whisper, remote or auto (default speech.engine)")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	busURL := cli.StringP("bus", "b", "", "Websocket hub url, empty disables the bus")
	noWake := cli.Bool("no-wake", false, "Disable the wake word, listen on trigger only")
	cli.Parse()

	if err := run(options{
		root:      *root,
		envFile:   *envFile,
		cfgFile:   *cfgFile,
		logLevel:  *logLevel,
		proxy:     *proxyAddr,
		modelPath: *modelPath,
		sttMode:   *sttMode,
		socket:    *socket,
		bus:       *busURL,
		noWake:    *noWake,
	}); err != nil {
		log.Error("Fatal", "err", err)
		os.Exit(1)
	}
}

type options struct {
	root      string
	envFile   string
	cfgFile   string
	logLevel  string
	proxy     string
	modelPath string
	sttMode   string
	socket    string
	bus       string
	noWake    bool
}

func (o options) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.root, p)
}

func run(o options) error {
	fs := afero.NewOsFs()

	// Console only until the prerequisites pass: nothing may be written
	// under root before that.
	level, lvlErr := logging.ParseLevel(o.logLevel)
	if _, _, err := logging.Setup(logging.Options{Level: level}); err != nil {
		return err
	}
	if lvlErr != nil {
		log.Warn("Falling back to info", "err", lvlErr)
	}

	log.Info("Booting up", "root", o.root)

	envPath := o.envFile
	if envPath == "" {
		envPath = o.path(provision.EnvFile)
	}
	if err := godotenv.Load(envPath); err != nil {
		log.Warn("No env file loaded", "path", envPath, "err", err)
	}

	cfgPath := o.cfgFile
	if cfgPath == "" {
		cfgPath = o.path(config.UserFile)
	}
	cfg, err := config.Load(fs, cfgPath)
	if err != nil {
		return err
	}
	log.Debug("Loaded config", "path", cfgPath)

	var httpClient *http.Client
	if o.proxy != "" {
		httpClient, err = proxy.NewSocksClient(o.proxy, 0)
		if err != nil {
			return err
		}
		log.Debug("Loaded proxy", "proxy", o.proxy)
	}

	endpoint := audio.DefaultEndpointConfig()
	endpoint.Threshold = cfg.Speech.EnergyThreshold
	endpoint.Silence = cfg.Speech.PhraseTimeoutDuration()
	endpoint.MaxDuration = cfg.Speech.MaxCommandDuration()
	endpoint.NoSpeech = cfg.Speech.TimeoutDuration()

	sttMode := o.sttMode
	if sttMode == "" {
		sttMode = cfg.Speech.Engine
	}

	var (
		rec         = mic.NewRecorder(endpoint)
		transcriber stt.Transcriber
		cleanup     closers
	)
	defer func() { cleanup.Close() }()

	rep, err := provision.Prepare(fs, o.root, []provision.Prerequisite{
		{Name: "audio", Check: func() error {
			if err := rec.Init(); err != nil {
				return err
			}
			cleanup = append(cleanup, closeFunc(rec.Close))
			return nil
		}},
		{Name: "transcriber", Check: func() error {
			t, c, err := newTranscriber(sttMode, o.path(o.modelPath), httpClient)
			if err != nil {
				return err
			}
			transcriber = t
			cleanup = append(cleanup, c)
			return nil
		}},
	})
	if err != nil {
		return err
	}
	log.Debug("Loaded recorder")
	log.Debug("Loaded transcriber", "name", transcriber.Name())

	_, logFile, err := logging.Setup(logging.Options{
		Level: level,
		Dir:   o.path("logs"),
		Fs:    fs,
	})
	if err != nil {
		return err
	}
	defer logFile.Close()

	if len(rep.Created) > 0 {
		log.Info("Created directories", "dirs", rep.Created)
	}
	for _, w := range rep.Warnings {
		log.Warn(w)
	}

	chat := newChat(cfg, httpClient)

	var (
		speaker tts.Speaker = tts.Silent{}
		voice   func(tts.Settings)
	)
	if es, err := espeak.New(tts.Settings{Rate: cfg.Voice.Rate, Volume: cfg.Voice.Volume}); err != nil {
		log.Warn("Speech synthesis unavailable, replies are only logged", "err", err)
	} else {
		speaker, voice = es, es.SetSettings
	}

	ctl := control.New(cfg, cfgPath)
	ctl.Transcriber = transcriber
	ctl.Fs = fs
	ctl.Voice = voice
	if chat != nil {
		ctl.Models = chat
	}

	var sess *jarvis.Session
	deps := jarvis.Deps{
		Capturer:    rec,
		Transcriber: transcriber,
		Speaker:     speaker,
		System: system.New(system.Config{
			Root:         o.root,
			CameraDevice: cfg.Camera.Device,
			CameraWidth:  cfg.Camera.Width,
			CameraHeight: cfg.Camera.Height,
		}, fs, audio.ExecRunner, system.ExecStarter),
		Notifier: notify.Desktop{Icon: o.path(provision.Icon)},
		Fs:       fs,
	}
	if chat != nil {
		deps.LLM = chat
	}
	if cfg.Features.DuckOthers {
		deps.Ducker = audio.NewDucker(audio.DuckerConfig{
			SelfNames: []string{"jarvis", "espeak", "espeak-ng"},
			Factor:    0.3,
			MinVolume: 10,
			Fade:      300 * time.Millisecond,
		}, audio.ExecRunner)
	}
	if ok, _ := afero.Exists(fs, o.path(earconFile)); ok {
		deps.Earcon = notify.NewEarcon(o.path(earconFile))
	}
	if cfg.Features.VoiceActivation && !o.noWake {
		deps.Wake = wake.NewDetector(wake.Config{
			Word:   cfg.Features.WakeWord,
			Window: cfg.Speech.WakeWindowDuration(),
			MinRMS: cfg.Speech.EnergyThreshold,
			Options: func() stt.Options {
				return stt.Options{Language: sess.Language().Whisper()}
			},
		}, rec, transcriber)
	}

	var recordDir string
	if cfg.Speech.SaveRecordings {
		recordDir = o.path("output/recordings")
	}

	sess, err = jarvis.New(deps, jarvis.Options{
		Language:        cfg.Language(),
		VoiceActivation: deps.Wake != nil,
		AutoListen:      cfg.Features.AutoListen,
		HistorySize:     cfg.Features.HistorySize,
		RecordDir:       recordDir,
		OnLanguage:      ctl.PersistLanguage,
	})
	if err != nil {
		return err
	}
	ctl.Session = sess

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if chat != nil {
		go ping(ctx, chat)
	}

	log.Info("Boot up - successful")

	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		runErrs []error
	)
	fail := func(err error) {
		errMu.Lock()
		runErrs = append(runErrs, err)
		errMu.Unlock()
		stop()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil {
			fail(err)
		}
	}()

	srv := &ipc.Server{Path: o.socket, Handler: ctl.Handle}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx); err != nil {
			fail(err)
		}
	}()

	if o.bus != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runBus(ctx, o.bus, sess)
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down")
	wg.Wait()

	return errors.Join(runErrs...)
}

func newChat(cfg *config.Config, httpClient *http.Client) *llm.Client {
	client, err := llm.New(llm.Config{
		APIKey:     cfg.OpenRouter.APIKey,
		BaseURL:    cfg.OpenRouter.BaseURL,
		Model:      cfg.OpenRouter.Model,
		MaxTokens:  cfg.OpenRouter.MaxTokens,
		SiteURL:    cfg.OpenRouter.SiteURL,
		SiteName:   cfg.OpenRouter.SiteName,
		HTTPClient: httpClient,
	})
	if errors.Is(err, llm.ErrNoAPIKey) {
		log.Warn("OPENROUTER_API_KEY not set, questions will not reach a model")
		return nil
	}
	if err != nil {
		log.Warn("Language model unavailable", "err", err)
		return nil
	}
	log.Debug("Loaded language model", "model", client.Model())
	return client
}

func ping(ctx context.Context, c *llm.Client) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		if ctx.Err() == nil {
			log.Warn("Language model check failed", "model", c.Model(), "err", err)
		}
		return
	}
	log.Info("Language model reachable", "model", c.Model())
}

type closers []io.Closer

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newTranscriber builds the transcriber chain. auto prefers the remote
// endpoint and falls back to whisper.cpp when both are available.
func newTranscriber(mode, modelPath string, httpClient *http.Client) (stt.Transcriber, io.Closer, error) {
	var remote stt.Transcriber
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		opts := []option.RequestOption{option.WithAPIKey(key)}
		if httpClient != nil {
			opts = append(opts, option.WithHTTPClient(httpClient))
		}
		remote = stt.NewRemote(openai.NewClient(opts...), "")
	}

	loadWhisper := func() (*whisper.Transcriber, error) {
		return whisper.New(modelPath)
	}

	switch mode {
	case "remote":
		if remote == nil {
			return nil, nil, errors.New("remote transcription needs OPENAI_API_KEY")
		}
		return remote, closers{}, nil

	case "whisper":
		w, err := loadWhisper()
		if err != nil {
			return nil, nil, err
		}
		return w, closers{w}, nil

	case "auto", "":
		w, err := loadWhisper()
		switch {
		case err != nil && remote == nil:
			return nil, nil, err
		case err != nil:
			log.Warn("Whisper unavailable, using remote transcription only", "err", err)
			return remote, closers{}, nil
		case remote == nil:
			return w, closers{w}, nil
		}
		return &stt.Fallback{Primary: remote, Secondary: w}, closers{w}, nil
	}

	return nil, nil, fmt.Errorf("unknown transcriber %q, want whisper, remote or auto", mode)
}

// runBus mirrors session events to the hub and queues commands coming
// back from it.
func runBus(ctx context.Context, url string, sess *jarvis.Session) {
	b := bus.New(bus.Config{
		URL: url,
		OnMessage: func(m bus.Message) {
			if m.Kind != bus.KindCommand {
				return
			}
			l, _ := lang.Parse(m.Lang)
			if _, err := sess.Submit(m.Content, l); err != nil {
				log.Warn("Bus command dropped", "err", err)
			}
		},
	})

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				b.Publish(busMessage(ev))
			}
		}
	}()

	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("Bus stopped", "err", err)
	}
}

func busMessage(ev jarvis.Event) bus.Message {
	m := bus.Message{To: bus.Broadcast, Kind: string(ev.Kind), Content: ev.Text, Lang: string(ev.Language)}
	switch ev.Kind {
	case jarvis.EventStatus:
		m.Content = string(ev.Status)
	case jarvis.EventError:
		m.Content = ev.Err
	}
	return m
}
