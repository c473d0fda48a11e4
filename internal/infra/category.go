package infra

import (
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/coocood/freecache"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Built-in categories.
const (
	CategorySystem = "system"
	CategoryUser   = "user"
)

// categoryTTL keeps resolved categories for an hour; reinstalls are rare.
const categoryTTL = 3600

// DefaultSystemDirs are the executable locations treated as "system".
var DefaultSystemDirs = []string{
	"/System",
	"/usr/bin",
	"/usr/sbin",
	"/usr/libexec",
	"/bin",
	"/sbin",
	"/Applications/Utilities",
}

type categoryCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

type freeCategoryCache struct {
	cache *freecache.Cache
}

// unsafeStringToBytes converts without allocation; freecache copies keys.
func unsafeStringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *freeCategoryCache) Get(key string) (string, bool) {
	val, err := c.cache.Get(unsafeStringToBytes(key))
	if err != nil {
		return "", false
	}
	return string(val), true
}

func (c *freeCategoryCache) Set(key, value string) {
	_ = c.cache.Set(unsafeStringToBytes(key), []byte(value), categoryTTL)
}

type noopCategoryCache struct{}

func (noopCategoryCache) Get(_ string) (string, bool) { return "", false }
func (noopCategoryCache) Set(_, _ string)             {}

// ProcessCategoryResolver implements domain.CategoryResolver. Configured
// overrides win; otherwise the package's running executable decides:
// anything under a system directory is "system", everything else "user".
// Packages that are not running resolve to "user" and are not cached.
type ProcessCategoryResolver struct {
	processManager domain.ProcessManager
	overrides      map[string]string
	systemDirs     []string
	cache          categoryCache
	logger         *zap.Logger
}

// NewProcessCategoryResolver creates a resolver. cacheSizeMB <= 0 disables
// caching; empty systemDirs falls back to DefaultSystemDirs.
func NewProcessCategoryResolver(pm domain.ProcessManager, overrides map[string]string, systemDirs []string, cacheSizeMB int, logger *zap.Logger) *ProcessCategoryResolver {
	if len(systemDirs) == 0 {
		systemDirs = DefaultSystemDirs
	}

	var cache categoryCache = noopCategoryCache{}
	if cacheSizeMB > 0 {
		cache = &freeCategoryCache{cache: freecache.NewCache(cacheSizeMB * 1024 * 1024)}
	}

	return &ProcessCategoryResolver{
		processManager: pm,
		overrides:      overrides,
		systemDirs:     systemDirs,
		cache:          cache,
		logger:         logger,
	}
}

// ResolveCategory returns the category of pkg. Never fails.
func (r *ProcessCategoryResolver) ResolveCategory(pkg string) string {
	if c, ok := r.overrides[pkg]; ok {
		return c
	}
	if c, ok := r.cache.Get(pkg); ok {
		return c
	}

	pids, err := r.processManager.FindByName(pkg)
	if err != nil || len(pids) == 0 {
		return CategoryUser
	}

	for _, pid := range pids {
		exe, err := r.processManager.ExecutablePath(pid)
		if err != nil || exe == "" {
			continue
		}
		category := r.classify(exe)
		r.cache.Set(pkg, category)
		r.logger.Debug("resolved category",
			zap.String("package", pkg),
			zap.String("exe", exe),
			zap.String("category", category))
		return category
	}
	return CategoryUser
}

func (r *ProcessCategoryResolver) classify(exe string) string {
	exe = filepath.Clean(exe)
	for _, dir := range r.systemDirs {
		dir = filepath.Clean(dir)
		if exe == dir || strings.HasPrefix(exe, dir+string(filepath.Separator)) {
			return CategorySystem
		}
	}
	return CategoryUser
}

// Ensure ProcessCategoryResolver implements domain.CategoryResolver.
var _ domain.CategoryResolver = (*ProcessCategoryResolver)(nil)
