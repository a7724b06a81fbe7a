package telegram

import (
	"context"
	"fmt"
	"time"

	"tgstories/internal/domain"

	"github.com/gotd/td/tg"
)

// FetchStories lists active stories of all peers. Media locations are remembered
// for DownloadStory until the next fetch.
func (c *Client) FetchStories(ctx context.Context) ([]domain.Story, error) {
	api := c.client.API()
	req := &tg.StoriesGetAllStoriesRequest{Hidden: c.includeHidden}

	var stories []domain.Story
	locations := make(map[domain.StoryKey]tg.InputFileLocationClass)

	for page := 1; ; page++ {
		res, err := api.StoriesGetAllStories(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("get all stories: %w", err)
		}

		all, ok := res.(*tg.StoriesAllStories)
		if !ok {
			c.log.DebugContext(ctx, "Stories are not modified",
				"page", page)
			break
		}

		peers := newPeerResolver(all.Users, all.Chats)

		for _, ps := range all.PeerStories {
			ownerID, ok := peerID(ps.Peer)
			if !ok {
				continue
			}

			items := c.resolveSkipped(ctx, api, peers, ps)

			for _, item := range items {
				story, location := storyFromItem(ownerID, item)
				if location != nil {
					locations[story.Key()] = location
				}
				stories = append(stories, story)
			}
		}

		if !all.HasMore || all.State == "" {
			break
		}

		req = &tg.StoriesGetAllStoriesRequest{
			Next:   true,
			Hidden: c.includeHidden,
			State:  all.State,
		}
	}

	c.mu.Lock()
	c.locations = locations
	c.mu.Unlock()

	return stories, nil
}

// resolveSkipped returns full items for a peer, fetching the ones the server
// listed without media.
func (c *Client) resolveSkipped(
	ctx context.Context,
	api *tg.Client,
	peers peerResolver,
	ps tg.PeerStories,
) []*tg.StoryItem {
	var items []*tg.StoryItem
	var skipped []int

	for _, item := range ps.Stories {
		switch it := item.(type) {
		case *tg.StoryItem:
			items = append(items, it)
		case *tg.StoryItemSkipped:
			skipped = append(skipped, it.ID)
		}
	}

	if len(skipped) == 0 {
		return items
	}

	inputPeer, ok := peers.inputPeer(ps.Peer)
	if !ok {
		c.log.WarnContext(ctx, "Failed to resolve peer of skipped stories",
			"skippedCount", len(skipped))
		return items
	}

	res, err := api.StoriesGetStoriesByID(ctx, &tg.StoriesGetStoriesByIDRequest{
		Peer: inputPeer,
		ID:   skipped,
	})
	if err != nil {
		c.log.ErrorContext(ctx, "Failed to get skipped stories",
			"error", err,
			"storyIDs", skipped)
		return items
	}

	for _, item := range res.Stories {
		if it, ok := item.(*tg.StoryItem); ok {
			items = append(items, it)
		}
	}

	return items
}

func storyFromItem(ownerID int64, item *tg.StoryItem) (domain.Story, tg.InputFileLocationClass) {
	kind, ext, location := mediaLocation(item.Media)

	return domain.Story{
		UserID:  ownerID,
		StoryID: int64(item.ID),
		Date:    time.Unix(int64(item.Date), 0).UTC(),
		Kind:    kind,
		Ext:     ext,
	}, location
}

func peerID(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID, true
	case *tg.PeerChat:
		return p.ChatID, true
	case *tg.PeerChannel:
		return p.ChannelID, true
	default:
		return 0, false
	}
}

type peerResolver struct {
	users    map[int64]*tg.User
	channels map[int64]*tg.Channel
}

func newPeerResolver(users []tg.UserClass, chats []tg.ChatClass) peerResolver {
	r := peerResolver{
		users:    make(map[int64]*tg.User, len(users)),
		channels: make(map[int64]*tg.Channel),
	}

	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			r.users[user.ID] = user
		}
	}

	for _, ch := range chats {
		if channel, ok := ch.(*tg.Channel); ok {
			r.channels[channel.ID] = channel
		}
	}

	return r
}

func (r peerResolver) inputPeer(peer tg.PeerClass) (tg.InputPeerClass, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		u, ok := r.users[p.UserID]
		if !ok {
			return nil, false
		}
		return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}, true
	case *tg.PeerChannel:
		ch, ok := r.channels[p.ChannelID]
		if !ok {
			return nil, false
		}
		return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, true
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, true
	default:
		return nil, false
	}
}
