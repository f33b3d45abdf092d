package registry

import (
	"context"

	logx "roomwatch/pkg/logx"

	"roomwatch/internal/session"
	"roomwatch/internal/storage"
)

// Restore rebuilds every persisted session at boot and restarts pollers that
// held a resume claim when the process last died. One broken record never
// takes the rest down; it is logged and skipped.
func (r *Registry) Restore(ctx context.Context, store storage.Store) {
	if store == nil {
		return
	}
	ids, err := store.ListIDs(ctx)
	if err != nil {
		r.log.Error("session restore failed: cannot list sessions", logx.Err(err))
		return
	}

	restored, resumed := 0, 0
	for _, id := range ids {
		target, err := ParseSessionID(id)
		if err != nil {
			r.log.Warn("skipping session with unparseable id", logx.String("session", id), logx.Err(err))
			continue
		}
		blob, err := store.ReadState(ctx, id)
		if err != nil {
			r.log.Warn("skipping unreadable session record", logx.String("session", id), logx.Err(err))
			continue
		}
		st, err := session.Decode(blob)
		if err != nil {
			r.log.Warn("skipping corrupt session record", logx.String("session", id), logx.Err(err))
			continue
		}

		h := session.NewHandle(id, st, store.WriteState, r.log)
		p := r.GetOrCreate(id, target, h)
		restored++

		if st.Options.ResumeOnBoot {
			p.Start(ctx, true, true)
			resumed++
		}
	}
	r.log.Info("session restore complete",
		logx.Int("sessions", restored), logx.Int("resumed", resumed), logx.Int("records", len(ids)))
}
