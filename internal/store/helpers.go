package store

import (
	"slices"

	"github.com/Saisumanthklv/weapp-starter-template/internal/applog"
	"github.com/Saisumanthklv/weapp-starter-template/internal/storage"
)

// Well-known state keys.
const (
	KeyUserInfo      = "userInfo"
	KeyIsLoggedIn    = "isLoggedIn"
	KeyLoading       = "loading"
	KeyNetworkStatus = "networkStatus"
	KeyTabBarIndex   = "tabBarIndex"
	KeyPageStack     = "pageStack"
)

// Network status values.
const (
	NetworkOnline  = "online"
	NetworkOffline = "offline"
)

// InitialState is the state of a fresh application session.
func InitialState() map[string]any {
	return map[string]any{
		KeyUserInfo:      nil,
		KeyIsLoggedIn:    false,
		KeyLoading:       false,
		KeyNetworkStatus: NetworkOnline,
		KeyTabBarIndex:   0,
		KeyPageStack:     []string{},
	}
}

// UserInfo is the persisted profile of the signed-in user.
type UserInfo map[string]any

// Helpers are the application-level writes on top of a Store.
type Helpers struct {
	store *Store
	kv    storage.KV
	log   applog.CategoryLogger
}

// NewHelpers binds helpers to s, persisting user info in kv.
func NewHelpers(s *Store, kv storage.KV, log applog.CategoryLogger) *Helpers {
	if log == nil {
		log = applog.Discard(applog.CategoryData)
	}
	return &Helpers{store: s, kv: kv, log: log}
}

// SetUserInfo stores the user and the derived login flag in one round, and
// persists or removes it.
func (h *Helpers) SetUserInfo(info UserInfo) {
	var value any
	if info != nil {
		value = info
	}
	h.store.SetState(Patch{
		KeyUserInfo:   value,
		KeyIsLoggedIn: info != nil,
	})

	if h.kv == nil {
		return
	}
	var err error
	if info != nil {
		err = h.kv.Set(storage.KeyUserInfo, info)
	} else {
		err = h.kv.Remove(storage.KeyUserInfo)
	}
	if err != nil {
		h.log.Warn("failed to persist user info", map[string]any{"error": err.Error()})
	}
}

func (h *Helpers) SetLoading(loading bool) {
	h.store.Set(KeyLoading, loading)
}

func (h *Helpers) SetNetworkStatus(status string) {
	h.store.Set(KeyNetworkStatus, status)
}

func (h *Helpers) SetTabBarIndex(index int) {
	h.store.Set(KeyTabBarIndex, index)
}

// PageStack returns a copy of the page stack.
func (h *Helpers) PageStack() []string {
	v, _ := h.store.Get(KeyPageStack)
	return pageStack(v)
}

func pageStack(v any) []string {
	stack, _ := v.([]string)
	return slices.Clone(stack)
}

// PushPage appends path to the page stack.
func (h *Helpers) PushPage(path string) {
	h.store.Update(func(state map[string]any) Patch {
		return Patch{KeyPageStack: append(pageStack(state[KeyPageStack]), path)}
	})
}

// PopPage removes the top of the page stack. An empty stack is left alone.
func (h *Helpers) PopPage() {
	h.store.Update(func(state map[string]any) Patch {
		stack := pageStack(state[KeyPageStack])
		if len(stack) == 0 {
			return nil
		}
		return Patch{KeyPageStack: stack[:len(stack)-1]}
	})
}

// Restore reloads the persisted user info.
func (h *Helpers) Restore() {
	if h.kv == nil {
		return
	}
	var info UserInfo
	ok, err := h.kv.Get(storage.KeyUserInfo, &info)
	if err != nil {
		h.log.Error("initialize store error", map[string]any{"error": err.Error()})
		return
	}
	if ok && info != nil {
		h.SetUserInfo(info)
	}
}
