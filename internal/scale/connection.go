package scale

import (
	"time"

	"petshop-backend/internal/config"
	"petshop-backend/internal/models"
)

// Connection: bir kapsam için çözümlenmiş terazi bağlantısı
type Connection struct {
	Protocol  string
	Host      string
	Port      int
	Username  string
	Password  string
	UploadDir string
	HTTPPath  string
	Timeout   time.Duration
}

func override[T any](v *T, def T) T {
	if v != nil {
		return *v
	}
	return def
}

// ResolveConnection: state üzerindeki geçersiz kılma varsa o, yoksa ortam varsayılanı
func ResolveConnection(def config.Scale, st *models.ScaleSyncState) Connection {
	c := Connection{
		Protocol:  def.Protocol,
		Host:      def.Host,
		Port:      def.Port,
		Username:  def.Username,
		Password:  def.Password,
		UploadDir: def.UploadDir,
		HTTPPath:  def.HTTPPath,
		Timeout:   def.Timeout,
	}
	if st == nil {
		return c
	}
	c.Protocol = override(st.Protocol, c.Protocol)
	c.Host = override(st.Host, c.Host)
	c.Port = override(st.Port, c.Port)
	c.Username = override(st.Username, c.Username)
	c.Password = override(st.Password, c.Password)
	c.UploadDir = override(st.UploadDir, c.UploadDir)
	c.HTTPPath = override(st.HTTPPath, c.HTTPPath)
	return c
}

func ResolveFrequency(def config.Scale, st *models.ScaleSyncState) models.SyncFrequency {
	if st == nil {
		return models.SyncFrequency(def.Frequency)
	}
	return override(st.Frequency, models.SyncFrequency(def.Frequency))
}
