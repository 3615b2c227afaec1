package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vcompressor/app/config"
	"vcompressor/app/logger"
	"vcompressor/app/model"
	"vcompressor/app/utils"
)

// InitAdminUser 按配置创建或同步管理员账户
func InitAdminUser(db *gorm.DB, cfg *config.Config, log *logger.Logger) error {
	if cfg.Server.Username == "" || cfg.Server.Password == "" {
		return fmt.Errorf("管理员账户配置不能为空，请在配置文件中设置 server.username 和 server.password")
	}

	var admin model.User
	err := db.Where("is_admin = ?", true).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return createAdmin(db, cfg, log)
	}
	if err != nil {
		return err
	}

	needUpdate := false

	if admin.Username != cfg.Server.Username {
		var count int64
		db.Model(&model.User{}).Where("username = ? AND id != ?", cfg.Server.Username, admin.ID).Count(&count)
		if count > 0 {
			return fmt.Errorf("用户名 '%s' 已被其他用户使用，无法更新管理员用户名", cfg.Server.Username)
		}
		log.Infof("管理员用户名从 '%s' 更新为 '%s'", admin.Username, cfg.Server.Username)
		admin.Username = cfg.Server.Username
		needUpdate = true
	}

	if !utils.VerifyPassword(cfg.Server.Password, admin.Password) {
		hash, err := utils.HashPassword(cfg.Server.Password)
		if err != nil {
			return fmt.Errorf("哈希密码失败: %w", err)
		}
		admin.Password = hash
		needUpdate = true
		log.Infof("管理员 '%s' 密码已更新", cfg.Server.Username)
	}

	if !needUpdate {
		return nil
	}
	if err := db.Save(&admin).Error; err != nil {
		return fmt.Errorf("更新管理员账户失败: %w", err)
	}
	return nil
}

func createAdmin(db *gorm.DB, cfg *config.Config, log *logger.Logger) error {
	hash, err := utils.HashPassword(cfg.Server.Password)
	if err != nil {
		return fmt.Errorf("哈希密码失败: %w", err)
	}

	admin := model.User{
		Username: cfg.Server.Username,
		Password: hash,
		IsActive: true,
		IsAdmin:  true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %w", err)
	}

	log.Infof("管理员账户 '%s' 创建成功", cfg.Server.Username)
	return nil
}
