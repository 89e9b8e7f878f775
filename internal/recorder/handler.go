package recorder

import (
	"context"
	"fmt"
	"strings"

	"github.com/rbright/huddle/internal/ipc"
)

// Handle serves local control commands for the running daemon.
func (s *Service) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch strings.TrimSpace(req.Command) {
	case "status":
		return s.statusResponse()
	case "stop":
		if req.Channel != "" {
			reply := s.Stop(ctx, req.Channel)
			resp := ipc.Response{OK: reply.OK, Message: reply.Text}
			if !reply.OK {
				resp.Error = reply.Text
			}
			return resp
		}
		replies := s.StopAll(ctx)
		return ipc.Response{OK: true, Message: fmt.Sprintf("stopped %d recording(s)", len(replies))}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (s *Service) statusResponse() ipc.Response {
	resp := ipc.Response{OK: true, State: "idle"}
	for _, info := range s.Sessions() {
		resp.Sessions = append(resp.Sessions, ipc.SessionStatus{
			ID:        info.ID,
			GuildID:   info.Channel.GroupID,
			ChannelID: info.Channel.ChannelID,
			Channel:   info.Channel.Name,
			Identity:  info.Identity,
			State:     string(info.State),
			StartedAt: info.StartedAt,
			Speakers:  info.Speakers,
		})
	}
	if len(resp.Sessions) > 0 {
		resp.State = "recording"
	}
	for _, worker := range s.Workers() {
		resp.Workers = append(resp.Workers, ipc.WorkerStatus{
			ID:    worker.ID,
			Ready: worker.Ready,
			Busy:  len(worker.Occupied),
		})
	}
	return resp
}
