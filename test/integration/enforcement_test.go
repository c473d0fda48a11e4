//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/config"
	"github.com/eliteGoblin/focusd/kidlock/internal/daemon"
	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
	"github.com/eliteGoblin/focusd/kidlock/internal/infra"
	"github.com/eliteGoblin/focusd/kidlock/internal/policy"
	"github.com/eliteGoblin/focusd/kidlock/internal/usecase"
	"github.com/eliteGoblin/focusd/kidlock/test/fixtures"
)

type staticResolver map[string]string

func (r staticResolver) ResolveCategory(pkg string) string {
	if c, ok := r[pkg]; ok {
		return c
	}
	return "user"
}

type recordingBlocker struct {
	mu     sync.Mutex
	locked []string
}

func (b *recordingBlocker) PresentLock(_ context.Context, pkg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = append(b.locked, pkg)
	return nil
}

func (b *recordingBlocker) Locked() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.locked...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

var _ = Describe("Usage collection and enforcement", func() {
	var (
		ctx      context.Context
		tmpDir   string
		bridge   *fixtures.FakeHostBridge
		store    *infra.Store
		blocker  *recordingBlocker
		notifier *recordingNotifier
		enforcer *usecase.Enforcer
		logger   *zap.Logger
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = zap.NewNop()

		tmpDir, err = os.MkdirTemp("", "kidlock-integration-*")
		Expect(err).NotTo(HaveOccurred())

		bridge = fixtures.NewFakeHostBridge(filepath.Join(tmpDir, "feed"))
		store, err = infra.OpenStore(filepath.Join(tmpDir, "data"))
		Expect(err).NotTo(HaveOccurred())

		blocker = &recordingBlocker{}
		notifier = &recordingNotifier{}
		enforcer = usecase.NewEnforcerWithBudget(
			"kidlock",
			store,
			staticResolver{"com.example.calculator": "system"},
			blocker,
			notifier,
			usecase.NewReporter(store),
			logger,
		)
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	Describe("Collector", func() {
		It("stores each sampled event once across overlapping runs", func() {
			now := time.Now()
			Expect(bridge.Session("com.example.game", now.Add(-30*time.Minute), 10*time.Minute)).To(Succeed())

			collector := usecase.NewCollector(
				infra.NewFeedEventSource(bridge.UsagePath(), logger), store, time.Hour, logger)

			first, err := collector.Collect(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Inserted).To(Equal(2))

			second, err := collector.Collect(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Sampled).To(Equal(2))
			Expect(second.Inserted).To(BeZero())

			report, err := usecase.NewReporter(store).Report(ctx, now.Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Totals).To(HaveKeyWithValue("com.example.game", int64(10)))
			Expect(report.TotalMinutes).To(Equal(int64(10)))
		})
	})

	Describe("Enforcer with stored settings", func() {
		BeforeEach(func() {
			settings := &config.Settings{
				Rule: &domain.LockRule{
					Category:  "user",
					MinAge:    13,
					Whitelist: []string{"com.example.homework"},
					Blacklist: []string{"com.example.casino"},
				},
				Profile: &domain.ChildProfile{Age: 10},
				Window:  &domain.TimeWindow{StartMinute: 8 * 60, EndMinute: 20 * 60},
			}
			Expect(settings.Apply(ctx, store)).To(Succeed())
		})

		at := func(hour int) time.Time {
			now := time.Now()
			return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.Local)
		}

		It("locks blacklisted apps inside the window without notifying", func() {
			result, err := enforcer.HandleForeground(ctx, domain.ForegroundChange{PackageName: "com.example.casino", At: at(12)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Decision.Reason).To(Equal(domain.ReasonBlacklisted))
			Expect(blocker.Locked()).To(Equal([]string{"com.example.casino"}))
			Expect(notifier.Messages()).To(BeEmpty())
		})

		It("lets whitelisted apps through the age gate", func() {
			result, err := enforcer.HandleForeground(ctx, domain.ForegroundChange{PackageName: "com.example.homework", At: at(12)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Decision.Allowed).To(BeTrue())
			Expect(blocker.Locked()).To(BeEmpty())
		})

		It("locks and notifies outside the window", func() {
			result, err := enforcer.HandleForeground(ctx, domain.ForegroundChange{PackageName: "com.example.homework", At: at(22)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Decision.Reason).To(Equal(domain.ReasonOutOfWindow))
			Expect(blocker.Locked()).To(Equal([]string{"com.example.homework"}))
			Expect(notifier.Messages()).To(Equal([]string{"com.example.homework blocked by schedule"}))
		})

		It("never locks itself", func() {
			result, err := enforcer.HandleForeground(ctx, domain.ForegroundChange{PackageName: "kidlock", At: at(23)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SelfExcluded).To(BeTrue())
			Expect(blocker.Locked()).To(BeEmpty())
		})

		It("applies the daily limit to today's recorded usage", func() {
			Expect(store.SetLockRule(ctx, domain.LockRule{})).To(Succeed())
			Expect(store.SetDailyLimit(ctx, domain.DailyLimit{Minutes: 30})).To(Succeed())

			start := policy.StartOfDay(time.Now()).Add(9 * time.Hour)
			_, err := store.Append(ctx, []domain.UsageEvent{
				{PackageName: "com.example.video", Kind: domain.KindForeground, TimestampMillis: start.UnixMilli()},
				{PackageName: "com.example.video", Kind: domain.KindBackground, TimestampMillis: start.Add(45 * time.Minute).UnixMilli()},
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := enforcer.HandleForeground(ctx, domain.ForegroundChange{PackageName: "com.example.chat", At: at(12)})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Decision.Reason).To(Equal(domain.ReasonBudgetExceeded))
			Expect(blocker.Locked()).To(ContainElement("com.example.chat"))
		})
	})

	Describe("Daemon", func() {
		It("locks an app announced on the foreground feed", func() {
			Expect(store.SetLockRule(ctx, domain.LockRule{Blacklist: []string{"com.example.casino"}})).To(Succeed())

			d := daemon.New(
				daemon.Config{CollectInterval: time.Hour},
				usecase.NewCollector(infra.NewFeedEventSource(bridge.UsagePath(), logger), store, time.Hour, logger),
				infra.NewFeedForegroundNotifier(bridge.ForegroundPath(), logger),
				daemon.NewDispatcher(enforcer, 8, infra.NoopMetrics{}, logger),
				nil,
				logger,
			)

			runCtx, cancel := context.WithCancel(ctx)
			done := make(chan error, 1)
			go func() { done <- d.Run(runCtx) }()

			Eventually(func() []string {
				Expect(bridge.Foreground("com.example.casino", time.Now())).To(Succeed())
				return blocker.Locked()
			}, 5*time.Second, 100*time.Millisecond).Should(ContainElement("com.example.casino"))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	Describe("Retention", func() {
		It("archives and removes events older than the cutoff", func() {
			old := time.Now().Add(-100 * 24 * time.Hour)
			_, err := store.Append(ctx, []domain.UsageEvent{
				{PackageName: "a", Kind: domain.KindForeground, TimestampMillis: old.UnixMilli()},
				{PackageName: "a", Kind: domain.KindBackground, TimestampMillis: old.Add(time.Minute).UnixMilli()},
				{PackageName: "b", Kind: domain.KindForeground, TimestampMillis: time.Now().UnixMilli()},
			})
			Expect(err).NotTo(HaveOccurred())

			archiver, err := infra.NewArchiver(filepath.Join(tmpDir, "archive"))
			Expect(err).NotTo(HaveOccurred())
			defer archiver.Close()

			result, err := archiver.Archive(ctx, store, time.Now().Add(-90*24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Archived).To(Equal(2))
			Expect(result.Path).To(BeAnExistingFile())

			count, err := store.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})
	})
})
