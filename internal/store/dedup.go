package store

import "sudooom.im.client/internal/model"

// MergeMessages 将一批消息合并进会话日志，只追加日志和本批次中都未出现过的 ID，保持投递顺序。
// 没有新消息时原样返回 existing，appended 为空。不修改 existing。
func MergeMessages(existing, incoming []model.Message) (newLog, appended []model.Message) {
	if len(incoming) == 0 {
		return existing, nil
	}

	seen := make(map[int64]struct{}, len(existing)+len(incoming))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}

	for _, m := range incoming {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		appended = append(appended, m)
	}

	if len(appended) == 0 {
		return existing, nil
	}

	newLog = make([]model.Message, 0, len(existing)+len(appended))
	newLog = append(newLog, existing...)
	newLog = append(newLog, appended...)
	return newLog, appended
}
