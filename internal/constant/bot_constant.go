package constant

// Provider names as registered in the provider registry.
const (
	ProviderText      = "text"
	ProviderImage     = "openai-image"
	ProviderFlux      = "flux"
	ProviderLeonardo  = "leonardo"
	ProviderVision    = "vision"
	ProviderTTS       = "elevenlabs"
	ProviderVoiceChat = "voice-chat"
	ProviderMusic     = "suno"
	ProviderVideo     = "video"
)

const (
	FlowCustomMusic = "custom_music"
	// Inline-button data of an interactive flow starts with this prefix.
	CallbackFlowPrefix = "flow:"
)

// User commands.
const (
	CmdStart            = "/start"
	CmdHelp             = "/help"
	CmdHistory          = "/history"
	CmdDeleteSession    = "/delete_session"
	CmdSetSystem        = "/set_system_message"
	CmdGetSystem        = "/get_system_message"
	CmdListModels       = "/listmodels"
	CmdSetModel         = "/setmodel"
	CmdCurrentModel     = "/currentmodel"
	CmdQueueStatus      = "/queue_status"
	CmdGPT              = "/gpt"
	CmdListVoices       = "/listvoices"
	CmdSetVoice         = "/setvoice"
	CmdCurrentVoice     = "/currentvoice"
	CmdAddVoice         = "/add_voice"
	CmdDeleteVoice      = "/delete_custom_voice"
	CmdTTS              = "/tts"
	CmdGenerateImage    = "/generate_image"
	CmdAnalyzeImage     = "/analyze_image"
	CmdFlux             = "/flux"
	CmdListFlux         = "/list_flux_models"
	CmdSetFlux          = "/set_flux_model"
	CmdCurrentFlux      = "/current_flux_model"
	CmdLeo              = "/leo"
	CmdListLeonardo     = "/list_leonardo_models"
	CmdSetLeonardo      = "/set_leonardo_model"
	CmdCurrentLeonardo  = "/current_leonardo_model"
	CmdUnzoom           = "/unzoom"
	CmdRemoveBg         = "/remove_bg"
	CmdVideo            = "/video"
	CmdImg2Video        = "/img2video"
	CmdGenerateMusic    = "/generate_music"
	CmdCustomMusic      = "/custom_generate_music"
	CmdGenerateLyrics   = "/generate_lyrics"
	CmdExtendAudio      = "/extend_audio"
	CmdConcatAudio      = "/concat_audio"
	CmdMusicInfo        = "/get_music_info"
	CmdCancel           = "/cancel"
	CmdAdminBroadcast   = "/admin_broadcast"
	CmdAdminUserStats   = "/admin_user_stats"
	CmdAdminBan         = "/admin_ban"
	CmdAdminUnban       = "/admin_unban"
	CmdAdminSetGlobal   = "/admin_set_global_system"
	CmdAdminLogs        = "/admin_logs"
	CmdAdminRestart     = "/admin_restart"
	CmdAdminUpdate      = "/admin_update_models"
	CmdAdminPerformance = "/admin_performance"
)

const WelcomeText = `👋 Hi! I can chat, draw, speak, compose music and make short videos.

Just send me a message to chat, or a voice note to talk. Use /help to see everything I can do.`

const HelpText = `💬 Chat
/gpt <text> — ask the text model (or just send a message)
/history — show recent conversation
/delete_session — forget the conversation
/set_system_message <text> — change how I behave
/get_system_message — show the current instructions
/listmodels, /setmodel <id>, /currentmodel — text models

🗣 Voice
/tts <text> — read text aloud
/listvoices, /setvoice <name>, /currentvoice
/add_voice <name> — clone a voice from a voice message
/delete_custom_voice

🎨 Images
/generate_image <prompt>
/flux <prompt> — /list_flux_models, /set_flux_model, /current_flux_model
/leo <prompt> — /list_leonardo_models, /set_leonardo_model, /current_leonardo_model
/analyze_image [question] — with a photo
/unzoom, /remove_bg — with a photo

🎬 Video
/video <prompt>
/img2video [prompt] — with a photo

🎵 Music
/generate_music <description>
/custom_generate_music — step by step
/generate_lyrics <topic>
/extend_audio <clip id> [seconds] [lyrics]
/concat_audio <clip id>
/get_music_info <clip ids>

/queue_status — how busy I am`

const AdminHelpText = `🛠 Admin
/admin_broadcast <text>
/admin_user_stats
/admin_ban <user id>, /admin_unban <user id>
/admin_set_global_system <text>
/admin_logs [level] [count]
/admin_restart
/admin_update_models
/admin_performance`
