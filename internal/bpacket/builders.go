package bpacket

// Login reply negative codes (spec §4.6).
const (
	LoginInvalidCredentials int32 = -1
	LoginOutdatedClient     int32 = -2
	LoginBanned             int32 = -3
	LoginMultiaccount       int32 = -4
	LoginServerError        int32 = -5
	LoginVerificationNeeded int32 = -8
)

// PresenceBundleShardSize is the sharding size for UserPresenceBundle
// packets (carried from the original source's presence-bundle logic).
const PresenceBundleShardSize = 512

func build(id ID, fn func(w *Writer)) []byte {
	w := NewWriter()
	if fn != nil {
		fn(w)
	}
	return Encode(id, w.Bytes())
}

// LoginReply builds BANCHO_USER_LOGIN_REPLY. result is either a user id
// (success) or one of the LoginXxx negative codes (failure).
func LoginReply(result int32) []byte {
	return build(ServerLoginReply, func(w *Writer) { w.WriteI32(result) })
}

func SendMessage(msg BanchoMessage) []byte {
	return build(ServerSendMessage, func(w *Writer) { w.WriteMessage(msg) })
}

func Pong() []byte { return build(ServerPong, nil) }

func ChangeUsername(oldName, newName string) []byte {
	return build(ServerHandleIrcChangeUsername, func(w *Writer) {
		w.WriteString(oldName + ">>>>" + newName)
	})
}

// UserStats is the per-mode player statistics snapshot.
type UserStats struct {
	UserID      int32
	Action      uint8
	Info        string
	BeatmapMD5  string
	Mods        uint32
	Mode        uint8
	BeatmapID   int32
	RankedScore int64
	Accuracy    float32 // already in 0..100 form; encoded as /100
	PlayCount   int32
	TotalScore  int64
	Rank        int32
	PP          int16
}

func UserStatsPacket(s UserStats) []byte {
	return build(ServerUserStats, func(w *Writer) {
		w.WriteI32(s.UserID)
		w.WriteU8(s.Action)
		w.WriteString(s.Info)
		w.WriteString(s.BeatmapMD5)
		w.WriteU32(s.Mods)
		w.WriteU8(s.Mode)
		w.WriteI32(s.BeatmapID)
		w.WriteI64(s.RankedScore)
		w.WriteF32(s.Accuracy / 100)
		w.WriteI32(s.PlayCount)
		w.WriteI64(s.TotalScore)
		w.WriteI32(s.Rank)
		w.WriteI16(s.PP)
	})
}

func UserLogoutPacket(userID int32) []byte {
	return build(ServerUserLogout, func(w *Writer) {
		w.WriteI32(userID)
		w.WriteU8(0)
	})
}

func SpectatorJoined(userID int32) []byte {
	return build(ServerSpectatorJoined, func(w *Writer) { w.WriteI32(userID) })
}

func SpectatorLeft(userID int32) []byte {
	return build(ServerSpectatorLeft, func(w *Writer) { w.WriteI32(userID) })
}

func SpectateFrames(data []byte) []byte {
	return build(ServerSpectateFrames, func(w *Writer) { w.WriteRaw(data) })
}

func SpectatorCantSpectate(userID int32) []byte {
	return build(ServerSpectatorCantSpectate, func(w *Writer) { w.WriteI32(userID) })
}

func GetAttention() []byte { return build(ServerGetAttention, nil) }

func Notification(msg string) []byte {
	return build(ServerNotification, func(w *Writer) { w.WriteString(msg) })
}

func ChannelInfo(name, title string, playerCount int16) []byte {
	return build(ServerChannelInfo, func(w *Writer) {
		w.WriteString(name)
		w.WriteString(title)
		w.WriteI16(playerCount)
	})
}

func ChannelKick(channelName string) []byte {
	return build(ServerChannelKick, func(w *Writer) { w.WriteString(channelName) })
}

func ChannelAutoJoin(name, title string, playerCount int16) []byte {
	return build(ServerChannelAutoJoin, func(w *Writer) {
		w.WriteString(name)
		w.WriteString(title)
		w.WriteI16(playerCount)
	})
}

func BanchoPrivileges(privileges int32) []byte {
	return build(ServerPrivileges, func(w *Writer) { w.WriteI32(privileges) })
}

// FriendsList builds BANCHO_FRIENDS_LIST from a Vec<i32> of friend ids.
func FriendsList(friendIDs []int32) []byte {
	return build(ServerFriendsList, func(w *Writer) { w.WriteI32Slice(friendIDs) })
}

func ProtocolVersion(version int32) []byte {
	return build(ServerProtocolVersion, func(w *Writer) { w.WriteI32(version) })
}

func MainMenuIcon(imageURL, linkURL string) []byte {
	return build(ServerMainMenuIcon, func(w *Writer) {
		w.WriteString(imageURL + "|" + linkURL)
	})
}

func MatchPlayerSkipped(slotID int32) []byte {
	return build(ServerMatchPlayerSkipped, func(w *Writer) { w.WriteI32(slotID) })
}

// UserPresence is the combined identity+location+privilege snapshot sent
// on login and on presence request.
type UserPresence struct {
	UserID      int32
	Username    string
	UTCOffset   uint8
	CountryCode uint8
	Privileges  int32
	Longitude   float32
	Latitude    float32
	Rank        int32
}

func UserPresencePacket(p UserPresence) []byte {
	return build(ServerUserPresence, func(w *Writer) {
		w.WriteI32(p.UserID)
		w.WriteString(p.Username)
		w.WriteU8(p.UTCOffset + 24)
		w.WriteU8(p.CountryCode)
		w.WriteU8(uint8(p.Privileges))
		w.WriteF32(p.Longitude)
		w.WriteF32(p.Latitude)
		w.WriteI32(p.Rank)
	})
}

func BanchoRestart(millis int32) []byte {
	return build(ServerRestart, func(w *Writer) { w.WriteI32(millis) })
}

func ChannelJoinSuccess(channelName string) []byte {
	return build(ServerChannelJoinSuccess, func(w *Writer) { w.WriteString(channelName) })
}

func ChannelInfoEnd() []byte { return build(ServerChannelInfoEnd, nil) }

func SilenceEnd(durationSecs int32) []byte {
	return build(ServerSilenceEnd, func(w *Writer) { w.WriteI32(durationSecs) })
}

func UserSilenced(userID int32) []byte {
	return build(ServerUserSilenced, func(w *Writer) { w.WriteI32(userID) })
}

func UserPresenceSingle(userID int32) []byte {
	return build(ServerUserPresenceSingle, func(w *Writer) { w.WriteI32(userID) })
}

// UserPresenceBundle builds BANCHO_USER_PRESENCE_BUNDLE for a single
// shard; callers shard the full id list themselves at
// PresenceBundleShardSize ids per packet.
func UserPresenceBundle(userIDs []int32) []byte {
	return build(ServerUserPresenceBundle, func(w *Writer) { w.WriteI32Slice(userIDs) })
}

// UserDmBlocked builds the BANCHO_USER_DM_BLOCKED notice, carrying an
// empty BanchoMessage referencing only the blocked target.
func UserDmBlocked(target string) []byte {
	return build(ServerUserDmBlocked, func(w *Writer) {
		w.WriteMessage(BanchoMessage{Target: target})
	})
}

func TargetIsSilenced(target string) []byte {
	return build(ServerTargetIsSilenced, func(w *Writer) {
		w.WriteMessage(BanchoMessage{Target: target})
	})
}

func VersionUpdateForced() []byte { return build(ServerVersionUpdateForced, nil) }

func SwitchServer(timeoutSecs int32) []byte {
	return build(ServerSwitchServer, func(w *Writer) { w.WriteI32(timeoutSecs) })
}

func AccountRestricted() []byte { return build(ServerAccountRestricted, nil) }

func Rtx(msg string) []byte {
	return build(ServerRtx, func(w *Writer) { w.WriteString(msg) })
}

func MatchAbort() []byte { return build(ServerMatchAbort, nil) }

func SwitchTournamentServer(ip string) []byte {
	return build(ServerSwitchTournamentServer, func(w *Writer) { w.WriteString(ip) })
}

// ShardPresenceBundles splits ids into UserPresenceBundle packets of at
// most PresenceBundleShardSize ids each.
func ShardPresenceBundles(ids []int32) [][]byte {
	if len(ids) == 0 {
		return nil
	}
	var out [][]byte
	for start := 0; start < len(ids); start += PresenceBundleShardSize {
		end := start + PresenceBundleShardSize
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, UserPresenceBundle(ids[start:end]))
	}
	return out
}
