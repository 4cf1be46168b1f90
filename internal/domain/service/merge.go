package service

import "github.com/turtacn/authenticator/internal/domain/models"

// MergeAuthorizationsList reconciles a freshly polled snapshot with the previously known items.
// Final items of previous are kept as they are; fresh items sharing their identity are dropped.
// The result lists the remaining fresh items in fresh order, followed by the kept final items
// in previous order.
// MergeAuthorizationsList 将新轮询的列表与已知列表合并，已终结的条目优先保留。
func MergeAuthorizationsList(previous, fresh []*models.AuthorizationItem) []*models.AuthorizationItem {
	finals := make([]*models.AuthorizationItem, 0, len(previous))
	finalIDs := make(map[models.Identity]struct{}, len(previous))
	for _, item := range previous {
		if item == nil || !item.HasFinalStatus() {
			continue
		}
		if _, dup := finalIDs[item.Identity()]; dup {
			continue
		}
		finalIDs[item.Identity()] = struct{}{}
		finals = append(finals, item)
	}

	result := make([]*models.AuthorizationItem, 0, len(fresh)+len(finals))
	seen := make(map[models.Identity]struct{}, len(fresh))
	for _, item := range fresh {
		if item == nil {
			continue
		}
		id := item.Identity()
		if _, final := finalIDs[id]; final {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, item)
	}
	return append(result, finals...)
}

// MergeAuthorization accepts a single freshly polled item. When it carries a final status and a
// previous item with the same authorization id exists, the content of the previous item is
// copied onto it, since terminal responses may come back with stripped content.
// MergeAuthorization 合并单个新轮询条目，终结状态时沿用之前条目的内容。
func MergeAuthorization(previous []*models.AuthorizationItem, fresh *models.AuthorizationItem) *models.AuthorizationItem {
	if fresh == nil || !fresh.HasFinalStatus() {
		return fresh
	}
	for _, item := range previous {
		if item != nil && item.AuthorizationID == fresh.AuthorizationID {
			fresh.CopyContentFrom(item)
			return fresh
		}
	}
	return fresh
}
