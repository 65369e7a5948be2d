// Package membership implements the two-stage onboarding lifecycle:
// joining members receive the Infant role, and their first qualifying
// public message promotes them to Toddler.
package membership

import (
	"sync"

	"github.com/diamondburned/arikawa/v3/discord"
)

// Classifier partitions the guild's text channels into public and private
// by their permission overwrites: a channel with none is public. The
// partition is computed once after connecting and held for the process
// lifetime; Classify may be re-run on operator demand.
type Classifier struct {
	mu      sync.RWMutex
	public  map[discord.ChannelID]bool
	pubList []discord.Channel
	privLst []discord.Channel
	catList []discord.Channel
}

// NewClassifier returns an empty classifier. Until Classify runs, every
// channel reads as private, which fails safe for promotion.
func NewClassifier() *Classifier {
	return &Classifier{public: make(map[discord.ChannelID]bool)}
}

// Classify rebuilds the partition from a channel listing.
func (c *Classifier) Classify(channels []discord.Channel) {
	public := make(map[discord.ChannelID]bool)
	var pub, priv, cats []discord.Channel

	for _, ch := range channels {
		switch ch.Type {
		case discord.GuildCategory:
			cats = append(cats, ch)
			continue
		case discord.GuildText:
		default:
			continue
		}

		if len(ch.Overwrites) == 0 {
			public[ch.ID] = true
			pub = append(pub, ch)
		} else {
			priv = append(priv, ch)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.public = public
	c.pubList = pub
	c.privLst = priv
	c.catList = cats
}

// IsPublic reports whether the channel was public at classification time.
func (c *Classifier) IsPublic(id discord.ChannelID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.public[id]
}

// Public returns the public text channels.
func (c *Classifier) Public() []discord.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]discord.Channel(nil), c.pubList...)
}

// Private returns the private text channels.
func (c *Classifier) Private() []discord.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]discord.Channel(nil), c.privLst...)
}

// Categories returns the category channels.
func (c *Classifier) Categories() []discord.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]discord.Channel(nil), c.catList...)
}
