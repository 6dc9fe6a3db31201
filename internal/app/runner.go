package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/cache"
	"github.com/ggonzalez94/defi-agent/internal/chain/aptos"
	"github.com/ggonzalez94/defi-agent/internal/config"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/extract"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/journal"
	"github.com/ggonzalez94/defi-agent/internal/llmparse"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/out"
	"github.com/ggonzalez94/defi-agent/internal/policy"
	"github.com/ggonzalez94/defi-agent/internal/providers"
	"github.com/ggonzalez94/defi-agent/internal/providers/defillama"
	"github.com/ggonzalez94/defi-agent/internal/providers/pyth"
	"github.com/ggonzalez94/defi-agent/internal/registry"
	"github.com/ggonzalez94/defi-agent/internal/schema"
	"github.com/ggonzalez94/defi-agent/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	logs   io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		logs:   stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	cache         *cache.Store
	journal       *journal.Store
	root          *cobra.Command
	log           *logrus.Logger
	lastCommand   string
	lastAction    intent.Action
	lastWarnings  []string
	lastProviders []model.ProviderStatus
	lastPartial   bool

	marketProvider providers.MarketDataProvider
	yieldProvider  providers.YieldProvider
	priceProvider  providers.PriceProvider
	submitter      aptos.Submitter
	parser         llmparse.Parser
	extractor      *extract.Extractor
	service        *actions.Service
	providerInfos  []model.ProviderInfo
	closers        []func()
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	return state.run(args)
}

func (s *runtimeState) run(args []string) int {
	root := s.newRootCommand()
	s.root = root
	s.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(s.runner.stdout)
	root.SetErr(s.runner.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	defer s.close()
	if err == nil {
		return 0
	}
	s.renderError("", err, s.lastWarnings, s.lastProviders, s.lastPartial)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
	if s.journal != nil {
		_ = s.journal.Close()
		s.journal = nil
	}
	for _, fn := range s.closers {
		fn()
	}
	s.closers = nil
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Agent-first DeFi data and Aptos action CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = logging.New(settings.Logging(), s.runner.logs)

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if !policy.Exempt(path) {
				if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
					return err
				}
			}

			if err := s.initProviders(path); err != nil {
				return err
			}

			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().BoolVar(&s.flags.Markdown, "markdown", false, "Output a chat-ready markdown answer")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.Strict, "strict", false, "Fail on partial results")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Provider request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale cache entries")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.DefaultChain, "default-chain", "", "Chain used when a request names none")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&s.flags.LLM, "llm", false, "Extract parameters with Anthropic before keyword matching")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")

	cmd.AddCommand(s.newAskCommand())
	cmd.AddCommand(s.newExtractCommand())
	cmd.AddCommand(s.newNormalizeCommand())
	cmd.AddCommand(s.newTVLCommand())
	cmd.AddCommand(s.newProtocolsCommand())
	cmd.AddCommand(s.newChainsCommand())
	cmd.AddCommand(s.newPoolsCommand())
	cmd.AddCommand(s.newPriceCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newNFTCommand())
	cmd.AddCommand(s.newTxCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newServeMCPCommand())
	cmd.AddCommand(s.newCacheCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newProvidersCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// initProviders builds whatever collaborators tests have not injected.
func (s *runtimeState) initProviders(commandPath string) error {
	settings := s.settings
	if s.marketProvider == nil || s.yieldProvider == nil || s.priceProvider == nil || s.submitter == nil {
		httpClient := httpx.New(settings.Timeout)
		if s.marketProvider == nil || s.yieldProvider == nil {
			llama := defillama.New(httpClient).WithBaseURLs(settings.DefiLlamaAPIURL, settings.DefiLlamaYieldsURL)
			if s.marketProvider == nil {
				s.marketProvider = llama
			}
			if s.yieldProvider == nil {
				s.yieldProvider = llama
			}
		}
		if s.priceProvider == nil {
			prices, err := pyth.New(httpClient, settings.PriceCacheTTL)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "init price cache", err)
			}
			s.priceProvider = prices.WithBaseURL(settings.PythHermesURL)
			s.closers = append(s.closers, prices.Close)
		}
		if s.submitter == nil && settings.SignerConfigured() {
			fullnode, err := registry.ResolveFullnodeURL(settings.AptosFullnodeURL, settings.AptosNetwork)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "resolve aptos fullnode", err)
			}
			signer := aptos.NewRemoteSigner(httpClient, settings.SignerURL, settings.SignerSender, settings.SignerToken)
			s.submitter = aptos.New(httpClient, fullnode, signer, aptos.DefaultOptions())
		}
	}
	s.providerInfos = collectProviderInfos(s.marketProvider, s.yieldProvider, s.priceProvider, s.submitter)

	if s.parser == nil && settings.LLMEnabled && needsParser(commandPath) {
		parser, err := llmparse.New(llmparse.Config{
			APIKey:  settings.AnthropicAPIKey,
			Model:   settings.AnthropicModel,
			BaseURL: settings.AnthropicBaseURL,
		}, s.log)
		if err != nil {
			return err
		}
		s.parser = parser
	}

	if s.extractor == nil {
		tables := lookup.Default().WithDefaultChain(settings.DefaultChain)
		s.extractor = extract.New(tables, extract.WithLogger(s.log), extract.WithClock(s.runner.now))
	}
	if s.service == nil {
		s.service = actions.New(actions.Deps{
			Market:    s.marketProvider,
			Yields:    s.yieldProvider,
			Prices:    s.priceProvider,
			Submitter: s.submitter,
			Extractor: s.extractor,
			Logger:    s.log,
		})
	}
	return nil
}

func (s *runtimeState) logger() *logrus.Logger {
	if s.log == nil {
		s.log = logging.Discard()
	}
	return s.log
}

func collectProviderInfos(items ...any) []model.ProviderInfo {
	seen := map[string]struct{}{}
	infos := []model.ProviderInfo{}
	for _, item := range items {
		p, ok := item.(providers.Provider)
		if !ok || p == nil {
			continue
		}
		info := p.Info()
		if _, dup := seen[info.Name]; dup {
			continue
		}
		seen[info.Name] = struct{}{}
		infos = append(infos, info)
	}
	return infos
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil, false)
		},
	}
	return cmd
}

func (s *runtimeState) newProvidersCommand() *cobra.Command {
	root := &cobra.Command{Use: "providers", Short: "Provider commands"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List data providers and chain endpoints in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), s.providerInfos, nil, cacheMetaBypass(), nil, false)
		},
	}
	root.AddCommand(list)
	return root
}

type fetchFn func(ctx context.Context) (data any, providerStatus []model.ProviderStatus, warnings []string, partial bool, err error)

// decodeFn turns a cached payload back into renderable data.
type decodeFn func(raw []byte) (any, error)

func decodeReply(raw []byte) (any, error) {
	return actions.DecodeReply(raw)
}

// runCached serves fresh cache hits, otherwise fetches. When the fetch fails
// with a transient provider error, a stale entry within the max-stale budget
// is served with a warning instead.
func (s *runtimeState) runCached(commandPath, bucket, key string, ttl time.Duration, decode decodeFn, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	cacheStatus := cacheMetaMiss()
	warnings := []string{}
	var staleData any
	staleAvailable := false
	staleObservedAge := time.Duration(0)
	staleObservedAt := time.Time{}
	staleCacheStatus := cacheMetaMiss()

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key, s.settings.MaxStale)
		if err == nil && cached.Hit {
			entryStatus := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
			if data, err := decode(cached.Value); err == nil {
				if !cached.Stale {
					s.captureCommandDiagnostics(warnings, nil, false)
					return s.emitSuccess(commandPath, data, warnings, entryStatus, nil, false)
				}
				staleData = data
				staleAvailable = true
				staleObservedAge = cached.Age
				staleObservedAt = time.Now()
				staleCacheStatus = entryStatus
			} else {
				s.logger().WithError(err).WithField("command", commandPath).Debug("discarding undecodable cache entry")
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, providerStatus, providerWarnings, partial, err := fetch(ctx)
	warnings = append(warnings, providerWarnings...)
	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	if err != nil {
		if staleAvailable {
			if !staleFallbackAllowed(err) {
				return err
			}
			currentStaleAge := staleObservedAge
			if !staleObservedAt.IsZero() {
				currentStaleAge += time.Since(staleObservedAt)
			}
			staleCacheStatus.AgeMS = currentStaleAge.Milliseconds()
			if s.settings.NoStale {
				return clierr.Wrap(clierr.CodeUnavailable, "fresh provider fetch failed and stale fallback is disabled (--no-stale)", err)
			}
			if staleExceedsBudget(currentStaleAge, ttl, s.settings.MaxStale) {
				return clierr.Wrap(clierr.CodeUnavailable, "fresh provider fetch failed and cached data exceeded stale budget", err)
			}
			warnings = append(warnings, "provider fetch failed; serving stale data within max-stale budget")
			s.captureCommandDiagnostics(warnings, providerStatus, false)
			return s.emitSuccess(commandPath, staleData, warnings, staleCacheStatus, providerStatus, false)
		}
		return err
	}

	if partial && s.settings.Strict {
		s.captureCommandDiagnostics(warnings, providerStatus, true)
		return clierr.New(clierr.CodeNotFound, "partial results returned in strict mode")
	}

	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			if err := s.cache.SetFor(bucket, key, payload, ttl); err != nil {
				s.logger().WithError(err).WithField("command", commandPath).Warn("cache write failed")
			} else {
				cacheStatus = model.CacheStatus{Status: "write", AgeMS: 0, Stale: false}
			}
		}
	}

	s.captureCommandDiagnostics(warnings, providerStatus, partial)
	return s.emitSuccess(commandPath, data, warnings, cacheStatus, providerStatus, partial)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus, partial bool) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
			Partial:   partial,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

// renderError writes the failure envelope to stderr. Error types use the
// same tags as action responses so agents branch on one vocabulary.
func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus, partial bool) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := clierr.TagOf(err)
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		if cErr.Code == clierr.CodeBlocked {
			typ = "COMMAND_BLOCKED"
		}
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil

	var data any = []any{}
	if s.lastAction != intent.ActionUnknown {
		data = actions.Reply{Action: s.lastAction, Response: model.Fail[any](typ, message)}
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    data,
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
			Partial:   partial,
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	return uuid.NewString()
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable, clierr.CodeTimeout:
			return "unavailable"
		case clierr.CodeNotFound:
			return "not_found"
		default:
			return "error"
		}
	}
	return "error"
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleExceedsBudget(age, ttl, maxStale time.Duration) bool {
	if age <= ttl {
		return false
	}
	if maxStale < 0 {
		return false
	}
	return age > ttl+maxStale
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	switch cErr.Code {
	case clierr.CodeUnavailable, clierr.CodeRateLimited, clierr.CodeTimeout:
		return true
	}
	return false
}

func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "", "version", "schema", "providers", "providers list", "actions", "actions list",
		"extract", "normalize token", "normalize chain", "normalize protocol",
		"transfer", "nft mint", "tx", "tx list", "tx show", "serve-mcp":
		return false
	default:
		return true
	}
}

func needsParser(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "ask", "serve-mcp":
		return true
	}
	return false
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
	s.lastPartial = false
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus, partial bool) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
	s.lastPartial = partial
}
