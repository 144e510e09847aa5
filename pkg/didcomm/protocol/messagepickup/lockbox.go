/*
Reference implementation of kmutex from github.com/im7mortal/kmutex

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import "sync"

// lockbox serializes work per account key.
type lockbox struct {
	c *sync.Cond
	l sync.Locker
	s map[string]struct{}
}

func newLockBox() *lockbox {
	l := sync.Mutex{}
	return &lockbox{c: sync.NewCond(&l), l: &l, s: make(map[string]struct{})}
}

func (km *lockbox) locked(key string) (ok bool) { _, ok = km.s[key]; return }

// Unlock lockbox by account key.
func (km *lockbox) Unlock(key string) {
	km.l.Lock()
	defer km.l.Unlock()
	delete(km.s, key)
	km.c.Broadcast()
}

// Lock lockbox by account key.
func (km *lockbox) Lock(key string) {
	km.l.Lock()
	defer km.l.Unlock()

	for km.locked(key) {
		km.c.Wait()
	}

	km.s[key] = struct{}{}
}
