package types

// ServerConfig 服务器配置
type ServerConfig struct {
	Server struct {
		Listen          string `json:"listen"`
		Port            string `json:"port"`
		LogLevel        string `json:"log_level"`
		RecordsFile     string `json:"records_file"`
		UpstreamTimeout string `json:"upstream_timeout"`
		MaxConcurrency  int    `json:"max_concurrency"`
	} `json:"server"`

	Upstream []UpstreamServer `json:"upstream"`

	Tunnel struct {
		Suffix    string `json:"suffix"`
		Directory string `json:"directory"`
		ChunkSize int    `json:"chunk_size"`
		TTL       uint32 `json:"ttl"`
		CacheSize int64  `json:"cache_size"`
	} `json:"tunnel"`

	Audit struct {
		File            string `json:"file"`
		TimestampOffset string `json:"timestamp_offset"`
	} `json:"audit"`

	Redis struct {
		Address   string `json:"address"`
		Password  string `json:"password"`
		Database  int    `json:"database"`
		KeyPrefix string `json:"key_prefix"`
	} `json:"redis"`
}

// UpstreamServer 上游服务器配置
type UpstreamServer struct {
	Address       string `json:"address"`
	Protocol      string `json:"protocol"`
	ServerName    string `json:"server_name,omitempty"`
	SkipTLSVerify bool   `json:"skip_tls_verify,omitempty"`
}
