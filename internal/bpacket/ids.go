// Package bpacket implements the Bancho binary packet framing: a
// length-prefixed, typed packet format with ULEB128-encoded strings and
// little-endian scalars.
package bpacket

// ID identifies a packet's type. Client ids run 0-109, server ids 5-107;
// the two id spaces share numbering but are distinguished by direction.
type ID uint8

// Client -> server packet ids.
const (
	ClientChangeAction          ID = 0
	ClientSendPublicMessage     ID = 1
	ClientLogout                ID = 2
	ClientRequestStatusUpdate   ID = 3
	ClientPing                  ID = 4
	ClientSpectateStart         ID = 16
	ClientSpectateStop          ID = 17
	ClientSpectateFrames        ID = 18
	ClientErrorReport           ID = 20
	ClientSpectateCant          ID = 21
	ClientSendPrivateMessage    ID = 25
	ClientPartLobby             ID = 29
	ClientJoinLobby             ID = 30
	ClientCreateMatch           ID = 31
	ClientJoinMatch             ID = 32
	ClientPartMatch             ID = 33
	ClientMatchChangeSlot       ID = 38
	ClientMatchReady            ID = 39
	ClientMatchLock             ID = 40
	ClientMatchChangeSettings   ID = 41
	ClientMatchStart            ID = 44
	ClientMatchScoreUpdate      ID = 47
	ClientMatchComplete         ID = 49
	ClientMatchChangeMods       ID = 51
	ClientMatchLoadComplete     ID = 52
	ClientMatchNoBeatmap        ID = 54
	ClientMatchNotReady         ID = 55
	ClientMatchFailed           ID = 56
	ClientMatchHasBeatmap       ID = 59
	ClientMatchSkipRequest      ID = 60
	ClientChannelJoin           ID = 63
	ClientBeatmapInfoRequest    ID = 68
	ClientMatchTransferHost     ID = 70
	ClientFriendAdd             ID = 73
	ClientFriendRemove          ID = 74
	ClientMatchChangeTeam       ID = 77
	ClientChannelPart           ID = 78
	ClientReceiveUpdates        ID = 79
	ClientSetAwayMessage        ID = 82
	ClientIrcOnly               ID = 84
	ClientStatsRequest          ID = 85
	ClientMatchInvite           ID = 87
	ClientMatchChangePassword   ID = 90
	ClientTourneyMatchInfoReq   ID = 93
	ClientPresenceRequest       ID = 97
	ClientPresenceRequestAll    ID = 98
	ClientToggleBlockNonFriend  ID = 99
	ClientTourneyJoinMatchChan  ID = 108
	ClientTourneyLeaveMatchChan ID = 109
)

// Server -> client packet ids.
const (
	ServerLoginReply              ID = 5
	ServerSendMessage              ID = 7
	ServerPong                     ID = 8
	ServerHandleIrcChangeUsername  ID = 9
	ServerUserStats                ID = 11
	ServerUserLogout               ID = 12
	ServerSpectatorJoined          ID = 13
	ServerSpectatorLeft            ID = 14
	ServerSpectateFrames           ID = 15
	ServerVersionUpdate            ID = 19
	ServerSpectatorCantSpectate    ID = 22
	ServerGetAttention             ID = 23
	ServerNotification             ID = 24
	ServerUpdateMatch              ID = 26
	ServerNewMatch                 ID = 27
	ServerDisbandMatch             ID = 28
	ServerToggleBlockNonFriendDms  ID = 34
	ServerMatchJoinSuccess         ID = 36
	ServerMatchJoinFail            ID = 37
	ServerFellowSpectatorJoined    ID = 42
	ServerFellowSpectatorLeft      ID = 43
	ServerMatchStart               ID = 46
	ServerMatchScoreUpdate         ID = 48
	ServerMatchTransferHost        ID = 50
	ServerMatchAllPlayersLoaded    ID = 53
	ServerMatchPlayerFailed        ID = 57
	ServerMatchComplete            ID = 58
	ServerMatchSkip                ID = 61
	ServerChannelJoinSuccess       ID = 64
	ServerChannelInfo              ID = 65
	ServerChannelKick              ID = 66
	ServerChannelAutoJoin          ID = 67
	ServerBeatmapInfoReply         ID = 69
	ServerPrivileges               ID = 71
	ServerFriendsList               ID = 72
	ServerProtocolVersion          ID = 75
	ServerMainMenuIcon             ID = 76
	ServerMonitor                  ID = 80
	ServerMatchPlayerSkipped       ID = 81
	ServerUserPresence             ID = 83
	ServerRestart                  ID = 86
	ServerMatchInvite              ID = 88
	ServerChannelInfoEnd           ID = 89
	ServerMatchChangePassword      ID = 91
	ServerSilenceEnd               ID = 92
	ServerUserSilenced             ID = 94
	ServerUserPresenceSingle       ID = 95
	ServerUserPresenceBundle       ID = 96
	ServerUserDmBlocked            ID = 100
	ServerTargetIsSilenced         ID = 101
	ServerVersionUpdateForced      ID = 102
	ServerSwitchServer             ID = 103
	ServerAccountRestricted        ID = 104
	ServerRtx                      ID = 105
	ServerMatchAbort               ID = 106
	ServerSwitchTournamentServer   ID = 107

	// Unknown is a reserved id value. The decoder does not produce it: a
	// packet with an unrecognized id keeps its raw id byte, and the caller
	// checks it with Known and decides whether to ignore or log it.
	Unknown ID = 255
)

var knownIDs = map[ID]struct{}{
	ClientChangeAction: {}, ClientSendPublicMessage: {}, ClientLogout: {},
	ClientRequestStatusUpdate: {}, ClientPing: {}, ClientSpectateStart: {},
	ClientSpectateStop: {}, ClientSpectateFrames: {}, ClientErrorReport: {},
	ClientSpectateCant: {}, ClientSendPrivateMessage: {}, ClientPartLobby: {},
	ClientJoinLobby: {}, ClientCreateMatch: {}, ClientJoinMatch: {},
	ClientPartMatch: {}, ClientMatchChangeSlot: {}, ClientMatchReady: {},
	ClientMatchLock: {}, ClientMatchChangeSettings: {}, ClientMatchStart: {},
	ClientMatchScoreUpdate: {}, ClientMatchComplete: {}, ClientMatchChangeMods: {},
	ClientMatchLoadComplete: {}, ClientMatchNoBeatmap: {}, ClientMatchNotReady: {},
	ClientMatchFailed: {}, ClientMatchHasBeatmap: {}, ClientMatchSkipRequest: {},
	ClientChannelJoin: {}, ClientBeatmapInfoRequest: {}, ClientMatchTransferHost: {},
	ClientFriendAdd: {}, ClientFriendRemove: {}, ClientMatchChangeTeam: {},
	ClientChannelPart: {}, ClientReceiveUpdates: {}, ClientSetAwayMessage: {},
	ClientIrcOnly: {}, ClientStatsRequest: {}, ClientMatchInvite: {},
	ClientMatchChangePassword: {}, ClientTourneyMatchInfoReq: {},
	ClientPresenceRequest: {}, ClientPresenceRequestAll: {},
	ClientToggleBlockNonFriend: {}, ClientTourneyJoinMatchChan: {},
	ClientTourneyLeaveMatchChan: {},
}

// Known reports whether id is a recognized client packet id.
func Known(id ID) bool {
	_, ok := knownIDs[id]
	return ok
}
