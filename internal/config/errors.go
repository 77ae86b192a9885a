package config

import "errors"

// 配置相关错误
var (
	ErrEmptyListenAddr          = errors.New("服务监听地址不能为空")
	ErrEmptyServerAddr          = errors.New("处理服务地址不能为空")
	ErrInvalidReconnectDelay    = errors.New("重连间隔不能为负数")
	ErrInvalidFlushDuration     = errors.New("播放后丢弃时长必须在0.5到1秒之间")
	ErrInvalidRecordSeconds     = errors.New("录音时长必须大于0")
	ErrInvalidSampleRate        = errors.New("采样率必须大于0")
	ErrUnsupportedChannels      = errors.New("只支持单声道")
	ErrInvalidFilterOrder       = errors.New("高通滤波阶数必须为正偶数")
	ErrInvalidCutoff            = errors.New("高通截止频率必须在0和奈奎斯特频率之间")
	ErrInvalidNoiseReduction    = errors.New("降噪强度必须在0到1之间")
	ErrInvalidVADAggressiveness = errors.New("VAD激进程度必须在0到3之间")
	ErrInvalidVADFrame          = errors.New("VAD帧长只能是10、20或30毫秒")
	ErrUnknownBackend           = errors.New("未知的后端类型")
	ErrInvalidHistoryLimit      = errors.New("对话历史轮数不能为负数")
	ErrInvalidResponseKind      = errors.New("回复类型只能是text或audio")
)
