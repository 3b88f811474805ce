// Package resolver classifies a user-supplied channel identifier and
// resolves it to a canonical channel ID with at most one API call.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ytcollector/internal/logger"
	"ytcollector/internal/yt"
)

// Status is the outcome class of one resolution attempt.
type Status int

const (
	// Resolved means a canonical UC... channel ID was determined.
	Resolved Status = iota
	// NeedsSearch means only an expensive search could resolve the input;
	// it is deferred for downstream handling.
	NeedsSearch
	// Failed means the input is definitively unresolvable.
	Failed
)

// Result is the resolver's verdict for one input.
type Result struct {
	Status    Status
	ChannelID string
	Reason    string
}

var (
	reChannelID = regexp.MustCompile(`UC[A-Za-z0-9_-]{22}`)
	reUserURL   = regexp.MustCompile(`/user/([A-Za-z0-9_.\-]+)`)
	reHandleURL = regexp.MustCompile(`/@([A-Za-z0-9_.\-]+)`)
	reCustomURL = regexp.MustCompile(`/c/([A-Za-z0-9_.\-]+)`)
	reBareToken = regexp.MustCompile(`^@?[A-Za-z0-9_.\-]+$`)
)

const maxBareTokenLen = 70

// ChannelAPI is the single endpoint the resolver needs. Satisfied by
// *yt.Client.
type ChannelAPI interface {
	ChannelsList(ctx context.Context, tenantID string, p yt.ChannelsListParams) (map[string]any, error)
}

// Resolver turns raw channel inputs into canonical channel IDs. It is the
// only caller of the API facade in the core.
type Resolver struct {
	api ChannelAPI
	log logger.Logger
}

// New returns a Resolver over the given API facade.
func New(api ChannelAPI, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{api: api, log: log}
}

// Resolve classifies input and produces a Result, issuing at most one API
// call. The error return is reserved for context cancellation (TTL expiry);
// every other failure folds into the Result.
func (r *Resolver) Resolve(ctx context.Context, input, tenantID string) (Result, error) {
	input = strings.TrimSpace(input)

	// 1. Direct channel ID anywhere in the input. Free.
	if id := reChannelID.FindString(input); id != "" {
		r.log.Debug("resolved directly to channel id", logger.F("channel_id", id))
		return Result{Status: Resolved, ChannelID: id}, nil
	}

	// 2. Legacy /user/ URL. A miss here is definitive, no fall-through.
	if m := reUserURL.FindStringSubmatch(input); m != nil {
		name := m[1]
		return r.lookup(ctx, tenantID,
			yt.ChannelsListParams{Part: "id", ForUsername: name, MaxResults: 1},
			fmt.Sprintf("user '%s' not found", name))
	}

	// 3. Handle URL (/@handle).
	if m := reHandleURL.FindStringSubmatch(input); m != nil {
		handle := m[1]
		return r.lookup(ctx, tenantID,
			yt.ChannelsListParams{Part: "id", ForHandle: handle, MaxResults: 1},
			fmt.Sprintf("handle '@%s' not found", handle))
	}

	// 4. Custom /c/ URL: only the expensive search endpoint can resolve it.
	if m := reCustomURL.FindStringSubmatch(input); m != nil {
		r.log.Info("custom url needs search fallback", logger.F("input", input))
		return Result{Status: NeedsSearch, Reason: fmt.Sprintf("custom URL '/c/%s' requires search", m[1])}, nil
	}

	// 5. Bare token: try it as a handle.
	if len(input) > 0 && len(input) <= maxBareTokenLen && reBareToken.MatchString(input) {
		handle := strings.TrimPrefix(input, "@")
		return r.lookup(ctx, tenantID,
			yt.ChannelsListParams{Part: "id", ForHandle: handle, MaxResults: 1},
			fmt.Sprintf("handle '@%s' not found", handle))
	}

	return Result{Status: Failed, Reason: fmt.Sprintf("unrecognized input '%s'", input)}, nil
}

// lookup performs the single channels.list call and folds the outcome into
// a Result. notFound is the reason used for an empty item list.
func (r *Resolver) lookup(ctx context.Context, tenantID string, params yt.ChannelsListParams, notFound string) (Result, error) {
	payload, err := r.api.ChannelsList(ctx, tenantID, params)
	if err != nil {
		if yt.IsKind(err, yt.KindCancelled) {
			return Result{}, err
		}
		return Result{Status: Failed, Reason: err.Error()}, nil
	}
	if id := firstItemID(payload); id != "" {
		return Result{Status: Resolved, ChannelID: id}, nil
	}
	return Result{Status: Failed, Reason: notFound}, nil
}

// firstItemID digs items[0].id out of a decoded channels.list response.
func firstItemID(payload map[string]any) string {
	items, ok := payload["items"].([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := item["id"].(string)
	return id
}
